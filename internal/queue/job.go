// Package queue runs delivery jobs through a durable retry state machine.
//
// A job moves pending -> running -> succeeded | pending (retry) | failed.
// Transition is the only place that decides the next state; it is pure and
// takes the clock value and backoff function as arguments, so retry timing
// can be tested without sleeping.
package queue

import (
	"errors"
	"time"

	"github.com/TimurManjosov/activitygate/internal/rules"
)

// ErrQueueClosed is returned by Enqueue after Run has returned.
var ErrQueueClosed = errors.New("queue closed")

// State is the lifecycle position of a Job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further attempts will be made.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is one webhook delivery for a matched (rule, event) pair.
// Only Attempt, State, NextAttemptAt and LastError change after creation.
type Job struct {
	ID            string    `json:"id"`
	RuleKey       string    `json:"ruleKey"`
	URL           string    `json:"url"`
	Body          string    `json:"body"`
	Headers       string    `json:"headers"`
	IgnoreSSL     bool      `json:"ignoreSsl"`
	Chunked       bool      `json:"chunkedMode"`
	MaxAttempts   int       `json:"maxAttempts"`
	Attempt       int       `json:"attempt"`
	State         State     `json:"state"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// JobFor builds the job delivering body for rule.
func JobFor(rule rules.Rule, body string) Job {
	return Job{
		RuleKey:     rule.Key,
		URL:         rule.URL,
		Body:        body,
		Headers:     rule.Headers,
		IgnoreSSL:   rule.IgnoreSSL,
		Chunked:     rule.ChunkedMode,
		MaxAttempts: rule.RetriesNumber,
	}
}

// Outcome classifies one delivery attempt.
type Outcome int

const (
	// OutcomeSuccess is a 2xx response.
	OutcomeSuccess Outcome = iota + 1
	// OutcomeRetryable covers transport errors and every non-2xx status.
	OutcomeRetryable
	// OutcomeFailed is a request that can never succeed, such as a malformed URL.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one attempt. Status and Body are set when a
// response was received; Reason describes non-success outcomes.
type Result struct {
	Outcome Outcome
	Status  int
	Body    string
	Reason  string
}

// Success returns a successful Result.
func Success(status int, body string) Result {
	return Result{Outcome: OutcomeSuccess, Status: status, Body: body}
}

// Retryable returns a Result that consumes one attempt and may be retried.
func Retryable(reason string) Result {
	return Result{Outcome: OutcomeRetryable, Reason: reason}
}

// Failed returns a terminal Result.
func Failed(reason string) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason}
}

// Transition applies the result of one attempt to job and returns the job's
// next state. A retryable result on the last allowed attempt fails the job;
// otherwise the job is rescheduled backoff(attempt) after now.
func Transition(job Job, res Result, now time.Time, backoff Backoff) Job {
	job.Attempt++
	job.LastError = res.Reason

	switch res.Outcome {
	case OutcomeSuccess:
		job.State = StateSucceeded
	case OutcomeRetryable:
		if job.Attempt >= job.MaxAttempts {
			job.State = StateFailed
			break
		}
		job.State = StatePending
		job.NextAttemptAt = now.Add(backoff(job.Attempt))
	default:
		job.State = StateFailed
	}
	return job
}
