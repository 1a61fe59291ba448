/*
engine.go - Component wiring

PURPOSE:
  Bundles the engine's components over one TxStore and logger so callers
  (HTTP layer, tests) get a fully wired engine from a single constructor.
  The components stay independent; this is composition only.
*/
package chit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Engine is the fully wired ledger & reconciliation engine.
type Engine struct {
	Funds       *FundRegistry
	Members     *MembershipLedger
	Recorder    *Recorder
	Reconciler  *Reconciler
	Withdrawals *Processor
	Groups      *Distributor
}

// NewEngine wires all components over the given store.
func NewEngine(store TxStore, log *logrus.Logger) *Engine {
	recorder := NewRecorder(store, log)
	return &Engine{
		Funds:       NewFundRegistry(store, log),
		Members:     NewMembershipLedger(store, log),
		Recorder:    recorder,
		Reconciler:  NewReconciler(store, log),
		Withdrawals: NewProcessor(store, recorder, log),
		Groups:      NewDistributor(store, recorder, log),
	}
}

// LogSink is an EventSink that logs recorded payments. It stands in for the
// external notification collaborator in development setups.
type LogSink struct {
	Log *logrus.Logger
}

func (s *LogSink) PaymentRecorded(_ context.Context, p Payment) {
	s.Log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"fund_id":    p.FundID,
		"user_id":    p.UserID,
		"type":       p.Type,
		"amount":     p.Amount.String(),
	}).Debug("event: payment recorded")
}
