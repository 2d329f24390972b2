package trading

import (
	"strconv"

	"github.com/ksred/klear-brokerage/internal/types"
)

// admission is one placement request together with the client and instrument
// snapshots read for it
type admission struct {
	req        *PlaceOrderRequest
	client     *types.Client
	instrument *types.Instrument
}

type admissionCheck func(a *admission) error

// admissionChecks run after the client and instrument are known to exist.
// Order matters: the first failing check decides the error kind.
var admissionChecks = []admissionCheck{
	checkEligibility,
	checkQuantity,
	checkLotSize,
	checkPrice,
	checkSide,
	checkValidity,
}

func runAdmissionChecks(a *admission) error {
	for _, check := range admissionChecks {
		if err := check(a); err != nil {
			return err
		}
	}
	return nil
}

func checkEligibility(a *admission) error {
	if a.client.CanTrade() {
		return nil
	}
	return types.NewError(types.KindIneligibleClient,
		"client must be ACTIVE and KYC COMPLETED to place an order (kyc_status=%s, status=%s)",
		a.client.KYCStatus, a.client.Status).
		WithDetail("kyc_status", string(a.client.KYCStatus)).
		WithDetail("status", string(a.client.Status))
}

func checkQuantity(a *admission) error {
	if a.req.Quantity == nil || *a.req.Quantity <= 0 {
		return types.NewError(types.KindInvalidQuantity, "order quantity must be a positive number")
	}
	return nil
}

func checkLotSize(a *admission) error {
	lotSize := a.instrument.LotSize
	if lotSize == nil || *lotSize <= 0 {
		return nil
	}
	if *a.req.Quantity%*lotSize != 0 {
		return types.NewError(types.KindLotSizeViolation,
			"order quantity must be in multiples of lot size (%d)", *lotSize).
			WithDetail("lot_size", strconv.FormatInt(*lotSize, 10))
	}
	return nil
}

func checkPrice(a *admission) error {
	if a.req.Price == nil || !a.req.Price.IsPositive() {
		return types.NewError(types.KindInvalidPrice, "order price must be a positive number")
	}
	return nil
}

func checkSide(a *admission) error {
	if !a.req.Side.Valid() {
		return types.InvalidRequest("order side must be BUY or SELL, got %q", a.req.Side)
	}
	return nil
}

// checkValidity defaults an empty validity to DAY
func checkValidity(a *admission) error {
	if a.req.Validity == "" {
		a.req.Validity = types.ValidityDay
	}
	if !a.req.Validity.Valid() {
		return types.InvalidRequest("order validity must be DAY or IOC, got %q", a.req.Validity)
	}
	return nil
}
