package subscription

import (
	"time"

	"github.com/chronobill/chronobill/internal/types"
)

type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// BundleID is the bundle this subscription belongs to
	BundleID string `db:"bundle_id" json:"bundle_id"`

	// Category determines bundle alignment: one BASE or STANDALONE
	// subscription defines the bundle start, ADD_ON subscriptions align to
	// the bundle or to themselves depending on catalog rules.
	Category types.SubscriptionCategory `db:"category" json:"category"`

	// StartDate is the start date of the subscription
	StartDate time.Time `db:"start_date" json:"start_date"`

	// BundleStartDate is the alignment start date of the owning bundle
	BundleStartDate time.Time `db:"bundle_start_date" json:"bundle_start_date"`

	// CurrentActiveVersion is the generation of the subscription's event set.
	// Repair, transfer and migration bump it; the event rows of superseded
	// generations stay in the log, deactivated.
	CurrentActiveVersion int `db:"current_active_version" json:"current_active_version"`

	// BillCycleDayLocal is the nominal day of month recurring charges anchor on
	BillCycleDayLocal int `db:"bill_cycle_day_local" json:"bill_cycle_day_local"`

	// ChargedThroughDate marks the boundary up to which billing has been
	// computed. Once set it only moves forward; a recomputation must never
	// move it backward.
	ChargedThroughDate *time.Time `db:"charged_through_date" json:"charged_through_date"`

	// PaidThroughDate marks the boundary up to which payment has cleared
	PaidThroughDate *time.Time `db:"paid_through_date" json:"paid_through_date"`

	types.BaseModel
}

type Bundle struct {
	// ID is the unique identifier for the bundle
	ID string `db:"id" json:"id"`

	// ExternalKey is the caller supplied key used to look up the bundle
	ExternalKey string `db:"external_key" json:"external_key"`

	// AccountID is the owning account
	AccountID string `db:"account_id" json:"account_id"`

	// StartDate is the bundle alignment start date
	StartDate time.Time `db:"start_date" json:"start_date"`

	types.BaseModel
}
