package strategy

import (
	"context"

	"mailsweep/internal/model"
)

// Escalation is the terminal chain entry. It handles every group and marks
// the sender for bulk deletion; reaching it means every applicable strategy
// failed or none could handle the group.
type Escalation struct{}

func (Escalation) Name() string { return "escalation" }

func (Escalation) CanHandle(*model.SenderGroup) bool { return true }

func (Escalation) Attempt(context.Context, *model.SenderGroup) Outcome {
	return Outcome{Success: false, Detail: DetailExhausted}
}
