package reconcile

// Person is a commit author or committer.
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Commit is one pushed commit as delivered by a webhook.
type Commit struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	URL       string `json:"url"`
	Author    Person `json:"author"`
	Committer Person `json:"committer"`
}

const shortIDLen = 10

// ShortID returns the first ten characters of the commit id, or the whole
// id when it is shorter.
func (c Commit) ShortID() string {
	if len(c.ID) <= shortIDLen {
		return c.ID
	}
	return c.ID[:shortIDLen]
}

// BuildComment renders the issue comment for an action message.
func BuildComment(commit Commit, message string) string {
	return "[git commit " + commit.ShortID() + "|" + commit.URL + "]\n" + message
}
