package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnknownTask is returned when a task token was never issued or has expired.
	ErrUnknownTask = errors.New("unknown task token")
	// ErrTaskClosed is returned when a task token was already consumed or timed out.
	ErrTaskClosed = errors.New("task already closed")
	// ErrNoStateMachine is returned by execution calls when no state machine is configured.
	ErrNoStateMachine = errors.New("no state machine configured")
)

// API is the subset of the Step Functions client used here.
type API interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	StopExecution(ctx context.Context, params *sfn.StopExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StopExecutionOutput, error)
	ListExecutions(ctx context.Context, params *sfn.ListExecutionsInput, optFns ...func(*sfn.Options)) (*sfn.ListExecutionsOutput, error)
}

// Execution is a running or finished state machine execution.
type Execution struct {
	ARN       string
	Name      string
	StartedAt time.Time
}

// Client resumes suspended tasks and manages executions of one state machine.
type Client struct {
	api             API
	stateMachineARN string
	logger          *zap.Logger
}

func New(api API, stateMachineARN string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, stateMachineARN: stateMachineARN, logger: logger}
}

// NewFromConfig builds a Client on a loaded AWS config. endpoint overrides the
// service URL when set.
func NewFromConfig(cfg aws.Config, stateMachineARN, endpoint string, logger *zap.Logger) *Client {
	api := sfn.NewFromConfig(cfg, func(o *sfn.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(api, stateMachineARN, logger)
}

// SendTaskSuccess completes the task identified by taskToken with output encoded as JSON.
func (c *Client) SendTaskSuccess(ctx context.Context, taskToken string, output any) error {
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encode task output: %w", err)
	}
	_, err = c.api.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(raw)),
	})
	if err != nil {
		return classify(err)
	}
	c.logger.Debug("sent task success")
	return nil
}

// StartExecution starts the state machine with input. The execution name is
// prefix plus a random suffix.
func (c *Client) StartExecution(ctx context.Context, prefix string, input any) (Execution, error) {
	if c.stateMachineARN == "" {
		return Execution{}, ErrNoStateMachine
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return Execution{}, fmt.Errorf("encode execution input: %w", err)
	}

	name := ExecutionName(prefix)
	out, err := c.api.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(c.stateMachineARN),
		Name:            aws.String(name),
		Input:           aws.String(string(raw)),
	})
	if err != nil {
		return Execution{}, fmt.Errorf("start execution: %w", err)
	}
	c.logger.Info("started execution", zap.String("name", name), zap.String("arn", aws.ToString(out.ExecutionArn)))
	return Execution{ARN: aws.ToString(out.ExecutionArn), Name: name, StartedAt: aws.ToTime(out.StartDate)}, nil
}

// Running lists executions of the state machine that have not finished.
func (c *Client) Running(ctx context.Context) ([]Execution, error) {
	if c.stateMachineARN == "" {
		return nil, ErrNoStateMachine
	}

	var executions []Execution
	var next *string
	for {
		out, err := c.api.ListExecutions(ctx, &sfn.ListExecutionsInput{
			StateMachineArn: aws.String(c.stateMachineARN),
			StatusFilter:    types.ExecutionStatusRunning,
			NextToken:       next,
		})
		if err != nil {
			return nil, fmt.Errorf("list executions: %w", err)
		}
		for _, e := range out.Executions {
			executions = append(executions, Execution{
				ARN:       aws.ToString(e.ExecutionArn),
				Name:      aws.ToString(e.Name),
				StartedAt: aws.ToTime(e.StartDate),
			})
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		next = out.NextToken
	}
	return executions, nil
}

// StopRunning stops every running execution and returns how many were stopped.
func (c *Client) StopRunning(ctx context.Context, cause string) (int, error) {
	running, err := c.Running(ctx)
	if err != nil {
		return 0, err
	}

	stopped := 0
	for _, e := range running {
		_, err := c.api.StopExecution(ctx, &sfn.StopExecutionInput{
			ExecutionArn: aws.String(e.ARN),
			Error:        aws.String("Stopped"),
			Cause:        aws.String(cause),
		})
		if err != nil {
			return stopped, fmt.Errorf("stop execution %s: %w", e.ARN, err)
		}
		c.logger.Info("stopped execution", zap.String("arn", e.ARN))
		stopped++
	}
	return stopped, nil
}

// ExecutionName returns prefix plus a short random suffix.
func ExecutionName(prefix string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}

func classify(err error) error {
	var notExist *types.TaskDoesNotExist
	var invalidToken *types.InvalidToken
	var timedOut *types.TaskTimedOut
	switch {
	case errors.As(err, &notExist), errors.As(err, &invalidToken):
		return fmt.Errorf("%w: %v", ErrUnknownTask, err)
	case errors.As(err, &timedOut):
		return fmt.Errorf("%w: %v", ErrTaskClosed, err)
	default:
		return fmt.Errorf("send task success: %w", err)
	}
}
