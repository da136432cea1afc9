package curriculum

// Grade is one school year of the curriculum (e.g., "Lớp 6").
type Grade struct {
	ID      string  `yaml:"id" json:"id"`
	Subject string  `yaml:"subject" json:"subject"`
	Topics  []Topic `yaml:"topics" json:"topics"`
}

// Topic is a main topic ("chủ đề") with its share of the school year.
type Topic struct {
	Name      string     `yaml:"name" json:"name"`
	Percent   float64    `yaml:"percent" json:"percent"`
	Subtopics []Subtopic `yaml:"subtopics" json:"subtopics"`
}

// Subtopic is a unit inside a topic. Requirements is the free-form
// "yêu cầu cần đạt" text, grouped under level headings.
type Subtopic struct {
	Name         string `yaml:"name" json:"name"`
	Requirements string `yaml:"requirements" json:"requirements"`
}

// Subtopic looks up a subtopic by name and returns it with its topic.
func (g Grade) Subtopic(name string) (Topic, Subtopic, bool) {
	for _, t := range g.Topics {
		for _, s := range t.Subtopics {
			if s.Name == name {
				return t, s, true
			}
		}
	}
	return Topic{}, Subtopic{}, false
}
