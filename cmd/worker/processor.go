package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/syncer"
	"github.com/imrishuroy/go-workorder-sync/internal/validation"
)

// Runner runs sync passes.
type Runner interface {
	RunPasses(ctx context.Context, inbound, outbound bool) (syncer.Report, error)
}

// Processor turns Lambda invocations into sync runs.
type Processor struct {
	runner   Runner
	validate *validatorv10.Validate
	log      logrus.FieldLogger
}

// NewProcessor creates a processor around runner.
func NewProcessor(runner Runner, log logrus.FieldLogger) *Processor {
	return &Processor{runner: runner, validate: validation.New(), log: log}
}

// Handle dispatches on the event shape. Anything that is not an SQS batch is
// treated as a schedule tick.
func (p *Processor) Handle(ctx context.Context, raw json.RawMessage) (syncer.Report, error) {
	var inv invocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return syncer.Report{}, fmt.Errorf("invalid event: %w", err)
	}
	if len(inv.Records) > 0 {
		return p.HandleSQS(ctx, events.SQSEvent{Records: inv.Records})
	}
	p.log.WithFields(logrus.Fields{"event_id": inv.ID, "detail_type": inv.DetailType}).Info("scheduled sync")
	return p.runner.RunPasses(ctx, true, true)
}

// HandleSQS runs one sync covering every direction requested in the batch.
// A malformed message fails the batch so SQS redelivers it.
func (p *Processor) HandleSQS(ctx context.Context, ev events.SQSEvent) (syncer.Report, error) {
	var inbound, outbound bool
	for _, rec := range ev.Records {
		msg, err := p.decode(rec)
		if err != nil {
			p.log.WithError(err).WithField("message_id", rec.MessageId).Error("rejecting sync request")
			return syncer.Report{}, err
		}
		p.log.WithFields(logrus.Fields{
			"message_id":     rec.MessageId,
			"direction":      msg.Direction,
			"correlation_id": msg.CorrelationID,
		}).Info("sync requested")

		switch msg.Direction {
		case validation.DirectionInbound:
			inbound = true
		case validation.DirectionOutbound:
			outbound = true
		default:
			inbound, outbound = true, true
		}
	}
	if !inbound && !outbound {
		return syncer.Report{}, nil
	}
	return p.runner.RunPasses(ctx, inbound, outbound)
}

func (p *Processor) decode(rec events.SQSMessage) (WorkerMessage, error) {
	var msg WorkerMessage
	if rec.Body != "" {
		if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
			return msg, fmt.Errorf("invalid message body: %w", err)
		}
	}
	if err := p.validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("invalid message: %w", err)
	}
	return msg, nil
}
