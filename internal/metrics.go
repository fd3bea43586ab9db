package internal

import "expvar"

var (
	requestsTotal = expvar.NewMap("jirahooks_requests_total")
	parseErrors   = expvar.NewMap("jirahooks_parse_errors_total")
	commitsTotal  = expvar.NewMap("jirahooks_commits_total")
	actionsTotal  = expvar.NewMap("jirahooks_actions_total")
	publishErrors = expvar.NewMap("jirahooks_publish_errors_total")
)

func IncRequest(provider string) {
	requestsTotal.Add(provider, 1)
}

func IncParseError(provider string) {
	parseErrors.Add(provider, 1)
}

// IncCommit counts a processed commit by result label.
func IncCommit(result string) {
	commitsTotal.Add(result, 1)
}

// IncAction counts an applied or failed action by kind label.
func IncAction(kind string) {
	actionsTotal.Add(kind, 1)
}

// IncPublishError counts a failed publish by topic.
func IncPublishError(topic string) {
	publishErrors.Add(topic, 1)
}
