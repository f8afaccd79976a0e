// Package wire defines the JSON contract between the checkout service and
// the ledger service. Both sides encode and decode through the same types so
// the contract cannot drift.
package wire

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequest is the body of POST /payment and POST /payment/refund.
type PaymentRequest struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
	Amount  decimal.Decimal
}

// Encode writes the request as a JSON object.
func (r *PaymentRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("userUuid")
	e.Str(r.UserID.String())
	e.FieldStart("orderUuid")
	e.Str(r.OrderID.String())
	e.FieldStart("amount")
	encodeDecimal(e, r.Amount)
	e.ObjEnd()
}

// Decode reads the request from a JSON object.
func (r *PaymentRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userUuid":
			r.UserID, err = decodeUUID(d)
		case "orderUuid":
			r.OrderID, err = decodeUUID(d)
		case "amount":
			r.Amount, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// Validate checks for zero-value identifiers. Amount validation is the
// ledger's job; it journals bad amounts rather than rejecting them here.
func (r *PaymentRequest) Validate() error {
	if r.UserID == uuid.Nil {
		return errors.New("userUuid is required")
	}
	if r.OrderID == uuid.Nil {
		return errors.New("orderUuid is required")
	}
	return nil
}

// PaymentResponse is the body returned by the payment endpoints.
type PaymentResponse struct {
	UserID        uuid.UUID
	Success       bool
	TransactionID uuid.UUID
	NewBalance    decimal.Decimal
	Message       string
}

// Encode writes the response as a JSON object.
func (r *PaymentResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("userUuid")
	e.Str(r.UserID.String())
	e.FieldStart("isSuccess")
	e.Bool(r.Success)
	e.FieldStart("transactionUuid")
	e.Str(r.TransactionID.String())
	e.FieldStart("newBalance")
	encodeDecimal(e, r.NewBalance)
	if r.Message != "" {
		e.FieldStart("message")
		e.Str(r.Message)
	}
	e.ObjEnd()
}

// Decode reads the response from a JSON object.
func (r *PaymentResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userUuid":
			r.UserID, err = decodeUUID(d)
		case "isSuccess":
			r.Success, err = d.Bool()
		case "transactionUuid":
			r.TransactionID, err = decodeUUID(d)
		case "newBalance":
			r.NewBalance, err = decodeDecimal(d)
		case "message":
			r.Message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

// BalanceResponse is the body of GET /payment/{userUuid}/balance.
type BalanceResponse struct {
	UserID  uuid.UUID
	Balance decimal.Decimal
}

// Encode writes the response as a JSON object.
func (r *BalanceResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("userUuid")
	e.Str(r.UserID.String())
	e.FieldStart("balance")
	encodeDecimal(e, r.Balance)
	e.ObjEnd()
}

// Decode reads the response from a JSON object.
func (r *BalanceResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userUuid":
			r.UserID, err = decodeUUID(d)
		case "balance":
			r.Balance, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// SettlementResponse is the body of GET /payment/order/{orderUuid}: whether a
// withdrawal for the order has settled, and under which transaction.
type SettlementResponse struct {
	OrderID       uuid.UUID
	Settled       bool
	TransactionID uuid.UUID
	Amount        decimal.Decimal
}

// Encode writes the response as a JSON object.
func (r *SettlementResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("orderUuid")
	e.Str(r.OrderID.String())
	e.FieldStart("settled")
	e.Bool(r.Settled)
	if r.Settled {
		e.FieldStart("transactionUuid")
		e.Str(r.TransactionID.String())
		e.FieldStart("amount")
		encodeDecimal(e, r.Amount)
	}
	e.ObjEnd()
}

// Decode reads the response from a JSON object.
func (r *SettlementResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderUuid":
			r.OrderID, err = decodeUUID(d)
		case "settled":
			r.Settled, err = d.Bool()
		case "transactionUuid":
			r.TransactionID, err = decodeUUID(d)
		case "amount":
			r.Amount, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// Error is the JSON error envelope used by both services.
type Error struct {
	Code    int
	Message string
}

// Encode writes the error as a JSON object.
func (r *Error) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(r.Code)
	e.FieldStart("message")
	e.Str(r.Message)
	e.ObjEnd()
}

// encodeDecimal writes a decimal as a bare JSON number, avoiding the quoted
// default of decimal.Decimal's own MarshalJSON.
func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.RawStr(v.String())
}

// decodeDecimal accepts both bare numbers and string-wrapped numbers.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "read number")
	}
	v, err := decimal.NewFromString(strings.Trim(string(n), `"`))
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse decimal")
	}
	return v, nil
}

func decodeUUID(d *jx.Decoder) (uuid.UUID, error) {
	s, err := d.Str()
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "read string")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "parse uuid")
	}
	return id, nil
}
