package triage

// QuestionID identifies a catalog question. Asked-question tracking is done
// on ids, never on question text.
type QuestionID string

const (
	QuestionBreathing      QuestionID = "breathing"
	QuestionChestPain      QuestionID = "chest_pain"
	QuestionConsciousness  QuestionID = "consciousness"
	QuestionFeverSevere    QuestionID = "fever_severe"
	QuestionLocation       QuestionID = "location"
	QuestionSeverity       QuestionID = "severity"
	QuestionQuality        QuestionID = "quality"
	QuestionDuration       QuestionID = "duration"
	QuestionTrend          QuestionID = "trend"
	QuestionPattern        QuestionID = "pattern"
	QuestionFever          QuestionID = "fever"
	QuestionNausea         QuestionID = "nausea"
	QuestionNeurological   QuestionID = "neurological"
	QuestionCardiac        QuestionID = "cardiac"
	QuestionAge            QuestionID = "age"
	QuestionChronicDisease QuestionID = "chronic_disease"
	QuestionPregnancy      QuestionID = "pregnancy"
	QuestionMedications    QuestionID = "medications"
	QuestionSelfCare       QuestionID = "self_care"
	QuestionImprovement    QuestionID = "improvement"
	QuestionAllergy        QuestionID = "allergy"
)

// Question is one catalog entry. Category is empty for contextual questions
// that do not feed the risk score; Slot is the answer key the reply fills.
type Question struct {
	ID       QuestionID `yaml:"id" json:"id"`
	Text     string     `yaml:"text" json:"text"`
	Category Category   `yaml:"category,omitempty" json:"category,omitempty"`
	Slot     Slot       `yaml:"slot,omitempty" json:"slot,omitempty"`
}

const (
	GroupRedFlags           = "red_flags"
	GroupCharacterization   = "symptom_characterization"
	GroupTimeline           = "timeline"
	GroupAssociatedSymptoms = "associated_symptoms"
	GroupPatientContext     = "patient_context"
	GroupTreatmentResponse  = "treatment_response"
)

// QuestionCatalog indexes the question groups of a rule set.
type QuestionCatalog struct {
	groups map[string][]Question
	byID   map[QuestionID]Question
	byText map[string]QuestionID
}

func NewQuestionCatalog(groups []QuestionGroup) *QuestionCatalog {
	c := &QuestionCatalog{
		groups: make(map[string][]Question, len(groups)),
		byID:   make(map[QuestionID]Question),
		byText: make(map[string]QuestionID),
	}
	for _, g := range groups {
		c.groups[g.Name] = append(c.groups[g.Name], g.Questions...)
		for _, q := range g.Questions {
			c.byID[q.ID] = q
			c.byText[q.Text] = q.ID
		}
	}
	return c
}

func (c *QuestionCatalog) Get(id QuestionID) (Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

func (c *QuestionCatalog) Group(name string) []Question {
	return c.groups[name]
}

// IDForText resolves a stored question text back to its id. Sessions written
// before ids were recorded only carry texts.
func (c *QuestionCatalog) IDForText(text string) (QuestionID, bool) {
	id, ok := c.byText[text]
	return id, ok
}

// AskedSet is the set of questions already put to the patient.
type AskedSet map[QuestionID]bool

func NewAskedSet(ids []QuestionID) AskedSet {
	s := make(AskedSet, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func (s AskedSet) Any(ids ...QuestionID) bool {
	for _, id := range ids {
		if s[id] {
			return true
		}
	}
	return false
}
