package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus is the lifecycle status of a service job.
type JobStatus string

const (
	JobCreated    JobStatus = "CREATED"
	JobAccepted   JobStatus = "ACCEPTED"
	JobDelivering JobStatus = "DELIVERING"
	JobCompleted  JobStatus = "COMPLETED"
	JobRejected   JobStatus = "REJECTED"
	JobDisputed   JobStatus = "DISPUTED"
	JobExpired    JobStatus = "EXPIRED"
)

// JobTransitions is the closed transition table. Anything not listed here is a
// conflict. Terminal states have no entry.
var JobTransitions = map[JobStatus][]JobStatus{
	JobCreated:    {JobAccepted, JobRejected},
	JobAccepted:   {JobDelivering},
	JobDelivering: {JobCompleted, JobDisputed},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range JobTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is defined from s.
func (s JobStatus) Terminal() bool {
	_, ok := JobTransitions[s]
	return !ok
}

// ServiceOffering is a sellable capability published by an agent. Price is in
// USDC micro-units. Stats are updated transactionally with job completion and
// rating.
type ServiceOffering struct {
	Id            string    `db:"id"`
	AgentId       string    `db:"agent_id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	PriceUsdc     int64     `db:"price_usdc"`
	CompletedJobs int64     `db:"completed_jobs"`
	AvgLatencyMs  int64     `db:"avg_latency_ms"`
	AvgRating     float64   `db:"avg_rating"`
	Active        bool      `db:"active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ServiceJob is a single purchase between a buyer agent and a seller's
// offering. Never deleted; terminal states are COMPLETED, REJECTED, DISPUTED
// and EXPIRED.
type ServiceJob struct {
	Id            string     `db:"id"`
	OfferingId    string     `db:"offering_id"`
	BuyerAgentId  string     `db:"buyer_agent_id"`
	SellerAgentId string     `db:"seller_agent_id"`
	Status        JobStatus  `db:"status"`
	PriceUsdc     int64      `db:"price_usdc"`
	Requirements  string     `db:"requirements"`
	Deliverables  string     `db:"deliverables"`
	FailedReason  string     `db:"failed_reason"`
	BuyerRating   *int       `db:"buyer_rating"`
	BuybackUsdc   int64      `db:"buyback_usdc"`
	BuybackTxHash string     `db:"buyback_tx_hash"`
	ExpiresAt     time.Time  `db:"expires_at"`
	AcceptedAt    *time.Time `db:"accepted_at"`
	DeliveredAt   *time.Time `db:"delivered_at"`
	CompletedAt   *time.Time `db:"completed_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// FeeDistribution is an append-only audit row written per sweep run that
// observed at least one claim or distribution.
type FeeDistribution struct {
	Id        string          `db:"id"`
	Amount    decimal.Decimal `db:"amount"`
	Currency  string          `db:"currency"`
	Status    string          `db:"status"`
	TxHash    string          `db:"tx_hash"`
	CreatedAt time.Time       `db:"created_at"`
}

// TaskStatus is the lifecycle status of a queued provisioning task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskDead    TaskStatus = "dead"
)

// ProvisionTask is one row in the keyed work queue. DedupKey is unique, so a
// second enqueue for the same agent is rejected by the store rather than by
// application logic.
type ProvisionTask struct {
	Id            string     `db:"id"`
	DedupKey      string     `db:"dedup_key"`
	AgentId       string     `db:"agent_id"`
	Status        TaskStatus `db:"status"`
	Attempts      int        `db:"attempts"`
	NextAttemptAt time.Time  `db:"next_attempt_at"`
	LastError     string     `db:"last_error"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}
