package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/thread"
)

// Verdict is the judge's structured decision. The judge must answer with a
// JSON object of this shape; no free-text approval sniffing.
type Verdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// VerdictShape is the JSON schema for Verdict. Register judge agents with it
// as their ResponseShape so malformed verdicts are caught at the engine.
func VerdictShape() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"approved": map[string]any{"type": "boolean"},
			"feedback": map[string]any{"type": "string"},
		},
		"required": []any{"approved", "feedback"},
	}
}

// FeedbackResult is the outcome of a worker/judge loop. Exhausting the
// iteration budget without approval is not an error: Approved stays false and
// the caller handles the incomplete outcome explicitly.
type FeedbackResult struct {
	// Output is the last worker output, approved or not.
	Output string
	// Approved reports whether the judge accepted the output.
	Approved bool
	// Iterations counts completed worker/judge round trips.
	Iterations int
	// Feedback holds every judge feedback text in iteration order.
	Feedback []string
}

// FeedbackLoop iterates a worker agent under a judge agent's review: the
// worker produces, the judge scores against criteria, and the worker retries
// with the judge's feedback until approval or the iteration budget runs out.
type FeedbackLoop struct {
	runner  Runner
	threads thread.Store

	workerID      string
	judgeID       string
	criteria      string
	maxIterations int
	logger        logging.Logger
}

// FeedbackOptions configures a FeedbackLoop.
type FeedbackOptions struct {
	// MaxIterations bounds worker/judge round trips. Defaults to 3.
	MaxIterations int
	Logger        logging.Logger
}

// NewFeedbackLoop constructs a worker/judge loop.
func NewFeedbackLoop(runner Runner, threads thread.Store, workerID, judgeID, criteria string, optFns ...func(o *FeedbackOptions)) *FeedbackLoop {
	opts := FeedbackOptions{MaxIterations: 3, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FeedbackLoop{
		runner:        runner,
		threads:       threads,
		workerID:      workerID,
		judgeID:       judgeID,
		criteria:      criteria,
		maxIterations: opts.MaxIterations,
		logger:        opts.Logger,
	}
}

// Run drives the loop for the initial prompt. The first iteration sends the
// prompt verbatim; subsequent iterations prefix it with the prior judge
// feedback. The worker keeps one thread across iterations so it sees its own
// revision history; each judgment happens on a fresh thread.
func (l *FeedbackLoop) Run(ctx context.Context, prompt string) (FeedbackResult, error) {
	start := time.Now()
	result := FeedbackResult{}

	workerThread, err := l.threads.Create(map[string]string{"role": "worker"})
	if err != nil {
		return result, err
	}
	defer func() { _ = l.threads.Destroy(workerThread) }()

	for i := 0; i < l.maxIterations; i++ {
		workerPrompt := prompt
		if len(result.Feedback) > 0 {
			workerPrompt = fmt.Sprintf("Revise your previous answer. Reviewer feedback:\n%s\n\nOriginal task:\n%s",
				result.Feedback[len(result.Feedback)-1], prompt)
		}

		output, err := l.runOnThread(ctx, l.workerID, workerThread, workerPrompt)
		if err != nil {
			return result, fmt.Errorf("feedback loop iteration %d: worker: %w", i+1, err)
		}
		result.Output = output

		verdict, err := l.judge(ctx, output)
		if err != nil {
			return result, fmt.Errorf("feedback loop iteration %d: judge: %w", i+1, err)
		}
		result.Iterations = i + 1
		result.Feedback = append(result.Feedback, verdict.Feedback)

		l.logger.Info("feedback.iteration",
			"iteration", result.Iterations,
			"approved", verdict.Approved,
		)

		if verdict.Approved {
			result.Approved = true
			break
		}
	}

	l.logger.Info("feedback.completed",
		"iterations", result.Iterations,
		"approved", result.Approved,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// judge runs the judge agent on an isolated thread and parses its structured
// verdict.
func (l *FeedbackLoop) judge(ctx context.Context, output string) (Verdict, error) {
	judgeThread, err := l.threads.Create(map[string]string{"role": "judge"})
	if err != nil {
		return Verdict{}, err
	}
	defer func() { _ = l.threads.Destroy(judgeThread) }()

	prompt := fmt.Sprintf(
		"Evaluate the following output against the criteria. Respond with only a JSON object {\"approved\": bool, \"feedback\": string}.\n\nCriteria:\n%s\n\nOutput:\n%s",
		l.criteria, output,
	)
	raw, err := l.runOnThread(ctx, l.judgeID, judgeThread, prompt)
	if err != nil {
		return Verdict{}, err
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("unparseable verdict %q: %w", raw, err)
	}
	return verdict, nil
}

func (l *FeedbackLoop) runOnThread(ctx context.Context, agentID, threadID, prompt string) (string, error) {
	if err := l.threads.Append(threadID, core.NewUserMessage(prompt)); err != nil {
		return "", err
	}
	runID, err := l.runner.Start(ctx, agentID, threadID, "")
	if err != nil {
		return "", err
	}
	messages, err := l.runner.AwaitCompletion(ctx, runID)
	if err != nil {
		return "", err
	}
	final, ok := core.LastAgentMessage(messages)
	if !ok {
		return "", fmt.Errorf("run %s completed without an agent message", runID)
	}
	return final.Content, nil
}
