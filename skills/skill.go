package skills

// DocumentName is the file looked for in every candidate skill directory.
const DocumentName = "SKILL.md"

// Skill is one loaded capability document. It is never mutated after
// loading.
type Skill struct {
	Name        string
	Description string
	Body        string
	// SourcePath is the directory holding the document.
	SourcePath string
	// Metadata holds frontmatter fields other than name and description.
	Metadata map[string]string
}

func newSkill(dir string, doc Document) Skill {
	meta := make(map[string]string, len(doc.Frontmatter))
	for k, v := range doc.Frontmatter {
		if k == "name" || k == "description" {
			continue
		}
		meta[k] = v
	}
	return Skill{
		Name:        doc.Frontmatter["name"],
		Description: doc.Frontmatter["description"],
		Body:        doc.Body,
		SourcePath:  dir,
		Metadata:    meta,
	}
}
