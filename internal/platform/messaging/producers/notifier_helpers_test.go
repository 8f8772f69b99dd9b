package producers

import (
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/google/uuid"
)

func newEventForNotify() *audit.Event {
	return audit.NewEvent(audit.AggregateTransaction, uuid.New(), audit.TransactionSettled, uuid.Nil,
		"transaction settled", time.Now()).With("seller_net", "45825")
}
