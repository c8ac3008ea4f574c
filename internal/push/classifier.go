package push

import "net/http"

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient"
	OutcomePermanent Outcome = "permanent"
)

// DeliveryOutcome is the settled result of one delivery.
type DeliveryOutcome struct {
	SubscriptionID string
	Endpoint       string
	Status         int
	Outcome        Outcome
	Err            error
}

var defaultDeadStatuses = []int{http.StatusNotFound, http.StatusGone}

// Classifier maps a transport result to an outcome. Only statuses in the
// dead set are permanent; transport errors never are.
type Classifier struct {
	dead map[int]struct{}
}

func NewClassifier(deadStatuses []int) Classifier {
	if len(deadStatuses) == 0 {
		deadStatuses = defaultDeadStatuses
	}
	dead := make(map[int]struct{}, len(deadStatuses))
	for _, s := range deadStatuses {
		dead[s] = struct{}{}
	}
	return Classifier{dead: dead}
}

func (c Classifier) Classify(status int, err error) Outcome {
	if err != nil {
		return OutcomeTransient
	}
	if _, ok := c.dead[status]; ok {
		return OutcomePermanent
	}
	if status >= 200 && status < 300 {
		return OutcomeSuccess
	}
	return OutcomeTransient
}
