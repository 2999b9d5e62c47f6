package sync

import (
	"errors"
	"fmt"
	"strings"

	httpclient "github.com/case-framework/case-backend/pkg/http-client"
)

var (
	HttpClient *httpclient.ClientConfig
)

type SendEmailReq struct {
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Content  string   `json:"content"`
	HighPrio bool     `json:"highPrio"`
}

// NotifySettings controls the run summary e-mail. Aborted runs are always
// reported; runs with failed batches only when OnFailedBatches is set.
type NotifySettings struct {
	Recipients      []string `json:"recipients" yaml:"recipients"`
	OnFailedBatches bool     `json:"on_failed_batches" yaml:"on_failed_batches"`
	OnSuccess       bool     `json:"on_success" yaml:"on_success"`
}

func (n NotifySettings) shouldNotify(result RunResult) bool {
	if len(n.Recipients) == 0 {
		return false
	}
	switch {
	case result.Aborted:
		return true
	case result.BatchesFailed > 0:
		return n.OnFailedBatches
	default:
		return n.OnSuccess
	}
}

// NotifyRunResult sends the run summary to the configured recipients when the
// result calls for it. It returns nil when nothing had to be sent.
func NotifyRunResult(settings NotifySettings, runName string, result RunResult) error {
	if !settings.shouldNotify(result) {
		return nil
	}
	subject, message := runSummaryEmail(runName, result)
	return sendEmail(settings.Recipients, subject, message, result.Aborted)
}

func runSummaryEmail(runName string, result RunResult) (subject string, message string) {
	switch {
	case result.Aborted:
		subject = fmt.Sprintf("Sync '%s' aborted at page %d", runName, result.AbortedAtPage)
	case result.BatchesFailed > 0:
		subject = fmt.Sprintf("Sync '%s' finished with %d failed batches", runName, result.BatchesFailed)
	default:
		subject = fmt.Sprintf("Sync '%s' completed", runName)
	}

	lines := []string{
		fmt.Sprintf("Result: %s", result.Summary()),
		fmt.Sprintf("Pages: %d (started at page %d)", result.PagesCompleted, result.StartPage),
		fmt.Sprintf("Records fetched: %d", result.RecordsFetched),
		fmt.Sprintf("Records matched: %d", result.Matched),
		fmt.Sprintf("Records unresolved: %d", result.Unresolved),
		fmt.Sprintf("Records submitted: %d", result.Submitted),
		fmt.Sprintf("Batches failed: %d of %d", result.BatchesFailed, result.Batches),
	}
	if result.Aborted {
		lines = append(lines, fmt.Sprintf("Resume from page: %d", result.NextPage))
	}
	return subject, strings.Join(lines, "\n")
}

func sendEmail(recipients []string, subject string, message string, highPrio bool) error {
	if HttpClient == nil || HttpClient.RootURL == "" {
		return errors.New("connection to smtp bridge not initialized")
	}

	sendEmailReq := SendEmailReq{
		To:       recipients,
		Subject:  subject,
		Content:  message,
		HighPrio: highPrio,
	}
	resp, err := HttpClient.RunHTTPcall("/send-email", sendEmailReq)
	if err == nil && resp != nil {
		errMsg, hasError := resp["error"]
		if hasError {
			return fmt.Errorf("smtp bridge: %v", errMsg)
		}
	}
	return err
}
