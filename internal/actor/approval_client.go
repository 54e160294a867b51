package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/tools"
)

// ApprovalClient is the tool-side handle on the approval coordinator. It
// implements tools.Approver.
type ApprovalClient struct {
	ref            *ActorRef
	defaultTimeout time.Duration
}

var _ tools.Approver = (*ApprovalClient)(nil)

func NewApprovalClient(ref *ActorRef) *ApprovalClient {
	return &ApprovalClient{
		ref:            ref,
		defaultTimeout: defaultApprovalTimeout,
	}
}

// SetDefaultTimeout changes how long prompts wait for an answer.
func (c *ApprovalClient) SetDefaultTimeout(timeout time.Duration) {
	c.defaultTimeout = timeout
}

// RequestApproval routes one approval question through the coordinator and
// blocks until it is answered, times out, or ctx ends. Timeouts and
// cancellations come back as Denied.
func (c *ApprovalClient) RequestApproval(ctx context.Context, req tools.ApprovalRequest) (authz.ApprovalDecision, error) {
	requestID := req.CallID
	if requestID == "" {
		requestID = fmt.Sprintf("approval-%d", time.Now().UnixNano())
	}
	responseChan := make(chan *ApprovalResponse, 1)

	msg := &ApprovalRequestMsg{
		RequestID:    requestID,
		Request:      req,
		RequestCtx:   ctx,
		ResponseChan: responseChan,
		Timeout:      c.defaultTimeout,
	}
	if err := c.ref.Send(msg); err != nil {
		return authz.Denied, fmt.Errorf("failed to send approval request: %w", err)
	}

	select {
	case resp := <-responseChan:
		if resp.TimedOut {
			return authz.Denied, nil
		}
		if resp.Err != nil {
			return authz.Denied, resp.Err
		}
		return resp.Decision, nil
	case <-ctx.Done():
		// Let the coordinator clean up its pending entry.
		_ = c.ref.Send(&ApprovalCancelMsg{RequestID: requestID, Reason: "requester gone"})
		return authz.Denied, ctx.Err()
	}
}
