package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/lockfs/internal/protocol/wire"
	lfserrors "github.com/marmos91/lockfs/pkg/errors"
)

// FailDirective in a script simulates a client crash.
const FailDirective = "fail"

// Result is the outcome of one script line.
type Result struct {
	Line      int            `json:"line" yaml:"line"`
	Operation string         `json:"operation" yaml:"operation"`
	Sequence  int32          `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Response  *wire.Response `json:"-" yaml:"-"`
	Status    string         `json:"status" yaml:"status"`
	Size      int32          `json:"size" yaml:"size"`
	Payload   string         `json:"payload,omitempty" yaml:"payload,omitempty"`
	Err       error          `json:"-" yaml:"-"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewResult describes the outcome of sending operation.
func NewResult(operation string, seq int32, resp *wire.Response, err error) Result {
	r := Result{Operation: operation, Sequence: seq, Response: resp, Err: err}
	switch {
	case err != nil:
		r.Status = "-"
		r.Error = err.Error()
	case resp != nil:
		r.Status = lfserrors.StatusCode(resp.Status).String()
		r.Size = resp.Size
		r.Payload = string(resp.Payload)
	}
	return r
}

// String renders the result on one line.
func (r Result) String() string {
	switch {
	case r.Operation == FailDirective:
		return "fail"
	case r.Err != nil:
		return fmt.Sprintf("%-30s  error: %v", r.Operation, r.Err)
	case r.Payload != "":
		return fmt.Sprintf("%-30s  %s size=%d %q", r.Operation, r.Status, r.Size, r.Payload)
	default:
		return fmt.Sprintf("%-30s  %s size=%d", r.Operation, r.Status, r.Size)
	}
}

// Runner executes scripts line by line with one Client.
type Runner struct {
	client *Client

	// Report, when set, is called after every executed line.
	Report func(Result)
}

// NewRunner creates a runner for c.
func NewRunner(c *Client) *Runner {
	return &Runner{client: c}
}

// Run executes every line of script. Blank lines and lines starting with
// '#' are skipped. ErrNoResponse is recorded in the line's Result and does
// not stop the script; any other error does.
func (r *Runner) Run(ctx context.Context, script io.Reader) ([]Result, error) {
	var results []Result

	scanner := bufio.NewScanner(script)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		res, err := r.Step(ctx, line)
		res.Line = lineNo
		results = append(results, res)
		if r.Report != nil {
			r.Report(res)
		}
		if err != nil {
			return results, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return results, fmt.Errorf("reading script: %w", err)
	}
	return results, nil
}

// Step executes one line: an operation or the fail directive.
func (r *Runner) Step(ctx context.Context, line string) (Result, error) {
	if line == FailDirective {
		if err := r.client.Fail(); err != nil {
			return Result{Operation: line, Err: err, Error: err.Error()}, err
		}
		return Result{Operation: line, Status: "-"}, nil
	}

	resp, err := r.client.Do(ctx, line)
	res := NewResult(line, r.client.State().LastSequence, resp, err)
	if err != nil && !errors.Is(err, ErrNoResponse) {
		return res, err
	}
	return res, nil
}
