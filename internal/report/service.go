package report

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"symptom-triage/internal/consultation"
	"symptom-triage/internal/diagnosis"
	"symptom-triage/internal/triage"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

// DefaultFontPaths are fonts with Thai glyphs on common distributions.
var DefaultFontPaths = []string{
	"/usr/share/fonts/truetype/tlwg/Garuda.ttf",
	"/usr/share/fonts/truetype/noto/NotoSansThai-Regular.ttf",
	"/usr/share/fonts/noto/NotoSansThai-Regular.ttf",
	"/usr/share/fonts/google-noto/NotoSansThai-Regular.ttf",
	"/usr/share/fonts/TTF/NotoSansThai-Regular.ttf",
}

const (
	fontFamily = "Thai"
	textWidth  = 500
	pageBottom = 780
)

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPaths    []string
	now          func() time.Time
}

// NewService builds the report service. tg may be nil, in which case
// reports are rendered but never delivered. Empty fontPaths means
// DefaultFontPaths.
func NewService(tg TelegramClient, doctorChatID int64, fontPaths ...string) *Service {
	if len(fontPaths) == 0 {
		fontPaths = DefaultFontPaths
	}
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPaths:    fontPaths,
		now:          time.Now,
	}
}

func (s *Service) deliverable() bool {
	return s.tgClient != nil && s.doctorChatID != 0
}

// Render produces the PDF doctor report for a diagnosed session.
func (s *Service) Render(sess *consultation.Session, d *diagnosis.Diagnosis) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF, install a Thai TTF font or set REPORT_FONT_PATH: %w", fontErr)
	}

	w := &writer{pdf: pdf}
	w.line(20, "รายงานผลการคัดกรองอาการ")
	w.gap(10)

	w.line(12, "วันที่: "+s.now().Format("02.01.2006 15:04"))
	w.line(12, "รหัสการสนทนา: "+sess.ID)
	if sess.UserID != "" {
		w.line(12, "รหัสผู้ใช้: "+sess.UserID)
	}
	w.line(12, fmt.Sprintf("ระดับความเร่งด่วน: %s (%s)", d.TierLabel, d.Tier))
	w.line(12, fmt.Sprintf("คะแนนความเสี่ยง: %d", d.RiskScore))
	w.gap(10)

	w.line(14, "อาการที่แจ้ง:")
	if len(sess.Symptoms) == 0 {
		w.paragraph(11, "- ไม่มีข้อมูล")
	}
	for _, sym := range sess.Symptoms {
		w.paragraph(11, "- "+sym)
	}
	w.gap(8)

	if len(sess.Answers) > 0 {
		w.line(14, "ข้อมูลจากการซักถาม:")
		for _, slot := range sess.Answers.Slots() {
			w.paragraph(11, fmt.Sprintf("- %s: %s", slotLabel(slot), sess.Answers[slot]))
		}
		w.gap(8)
	}

	if len(sess.QuestionsAsked) > 0 {
		w.line(14, fmt.Sprintf("คำถามที่ถาม (%d):", sess.QuestionCount))
		for i, q := range sess.QuestionsAsked {
			w.paragraph(11, fmt.Sprintf("%d. %s", i+1, q))
		}
		w.gap(8)
	}

	w.line(14, "สรุป:")
	w.paragraph(11, d.Summary)
	w.gap(8)

	if len(d.Recommendations) > 0 {
		w.line(14, "คำแนะนำ:")
		for _, r := range d.Recommendations {
			w.paragraph(11, "- "+r)
		}
		w.gap(8)
	}
	if len(d.WarningSigns) > 0 {
		w.line(14, "อาการที่ต้องพบแพทย์ทันที:")
		for _, ws := range d.WarningSigns {
			w.paragraph(11, "- "+ws)
		}
		w.gap(8)
	}

	w.gap(10)
	w.paragraph(9, "รายงานนี้เป็นผลการคัดกรองเบื้องต้น ไม่ใช่การวินิจฉัยโรค (ที่มา: "+d.Source+")")
	if w.err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// SendDoctorReport renders the report and sends it to the doctor chat.
func (s *Service) SendDoctorReport(ctx context.Context, sess *consultation.Session, d *diagnosis.Diagnosis) error {
	if !s.deliverable() {
		log.Printf("Telegram is not configured, skipping report for session %s", sess.ID)
		return nil
	}
	pdf, err := s.Render(sess, d)
	if err != nil {
		return err
	}
	fileName := fmt.Sprintf("triage_%s.pdf", sess.ID)
	log.Printf("Sending PDF report for session %s to Telegram chat %d", sess.ID, s.doctorChatID)
	return s.tgClient.SendDocument(ctx, s.doctorChatID, pdf, fileName)
}

func (s *Service) NotifyEmergency(ctx context.Context, sess *consultation.Session, reason triage.StopReason) error {
	if !s.deliverable() {
		log.Printf("Telegram is not configured, skipping emergency notice for session %s", sess.ID)
		return nil
	}
	var b strings.Builder
	b.WriteString("ผู้ป่วยเข้าข่ายฉุกเฉิน\n")
	fmt.Fprintf(&b, "Session: %s\n", sess.ID)
	if sess.UserID != "" {
		fmt.Fprintf(&b, "User: %s\n", sess.UserID)
	}
	fmt.Fprintf(&b, "เหตุผล: %s\n", reasonLabel(reason))
	fmt.Fprintf(&b, "อาการ: %s", strings.Join(sess.Symptoms, " / "))
	return s.tgClient.SendMessage(ctx, s.doctorChatID, b.String())
}

func (s *Service) NotifyEscalation(ctx context.Context, sess *consultation.Session, c *consultation.CheckIn) error {
	if !s.deliverable() {
		log.Printf("Telegram is not configured, skipping escalation for session %s", sess.ID)
		return nil
	}
	var b strings.Builder
	b.WriteString("ผู้ป่วยแจ้งว่าอาการแย่ลงหลังการคัดกรอง\n")
	fmt.Fprintf(&b, "Session: %s\n", sess.ID)
	fmt.Fprintf(&b, "ระดับเดิม: %s\n", diagnosis.TierLabel(sess.Tier))
	fmt.Fprintf(&b, "อาการ: %s", strings.Join(sess.Symptoms, " / "))
	if c.Notes != "" {
		fmt.Fprintf(&b, "\nบันทึก: %s", c.Notes)
	}
	return s.tgClient.SendMessage(ctx, s.doctorChatID, b.String())
}

func reasonLabel(r triage.StopReason) string {
	switch r {
	case triage.StopRedFlag:
		return "พบสัญญาณอันตราย"
	case triage.StopEmergencyKeyword:
		return "ผู้ป่วยใช้คำที่บ่งชี้ภาวะฉุกเฉิน"
	default:
		return "คะแนนความเสี่ยงสูง"
	}
}

var slotLabels = map[triage.Slot]string{
	triage.SlotDuration:           "ระยะเวลา",
	triage.SlotTrend:              "แนวโน้มอาการ",
	triage.SlotSeverity:           "ความรุนแรง",
	triage.SlotRiskGroup:          "กลุ่มเสี่ยง",
	triage.SlotSelfCareResponse:   "การดูแลตนเอง",
	triage.SlotAssociatedSymptoms: "อาการร่วม",
	triage.SlotAge:                "อายุ",
	triage.SlotGender:             "เพศ",
	triage.SlotChronicDisease:     "โรคประจำตัว",
	triage.SlotAllergy:            "แพ้ยา",
}

func slotLabel(s triage.Slot) string {
	if l, ok := slotLabels[s]; ok {
		return l
	}
	return string(s)
}

// writer lays out lines top to bottom and keeps the first error.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *writer) setFont(size float64) bool {
	if w.err != nil {
		return false
	}
	w.err = w.pdf.SetFont(fontFamily, "", size)
	return w.err == nil
}

func (w *writer) line(size float64, text string) {
	if !w.setFont(size) {
		return
	}
	w.breakPage()
	w.pdf.SetX(gopdf.PageSizeA4.W/2 - textWidth/2)
	if err := w.pdf.Cell(nil, text); err != nil {
		w.err = err
		return
	}
	w.pdf.Br(size + 6)
}

func (w *writer) paragraph(size float64, text string) {
	if !w.setFont(size) {
		return
	}
	lines, err := w.pdf.SplitText(text, textWidth)
	if err != nil {
		lines = []string{text}
	}
	for _, l := range lines {
		w.breakPage()
		w.pdf.SetX(gopdf.PageSizeA4.W/2 - textWidth/2)
		if err := w.pdf.Cell(nil, l); err != nil {
			w.err = err
			return
		}
		w.pdf.Br(size + 4)
	}
}

func (w *writer) gap(h float64) {
	if w.err == nil {
		w.pdf.Br(h)
	}
}

func (w *writer) breakPage() {
	if w.pdf.GetY() > pageBottom {
		w.pdf.AddPage()
	}
}
