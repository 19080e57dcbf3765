package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/little-shop/internal/domain/validation"
)

// errorStyle selects one of the two error body shapes.
type errorStyle uint8

const (
	// plainErrors renders {"error": "..."}.
	plainErrors errorStyle = iota
	// queryErrors renders {"message": "...", "errors": [...]}.
	queryErrors
)

const queryFailedMessage = "your query could not be completed"

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeData renders {"data": ...}.
func writeData(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("data")
		fn(e)
		e.ObjEnd()
	})
}

func writeError(w http.ResponseWriter, status int, style errorStyle, msgs []string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		switch style {
		case queryErrors:
			e.FieldStart("message")
			e.Str(queryFailedMessage)
			e.FieldStart("errors")
			e.ArrStart()
			for _, m := range msgs {
				e.Str(m)
			}
			e.ArrEnd()
		default:
			e.FieldStart("error")
			e.Str(validation.Sentence(msgs))
		}
		e.ObjEnd()
	})
}

// resource writes one JSON-API resource object.
func resource(e *jx.Encoder, typ string, id int64, attrs func(e *jx.Encoder)) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(strconv.FormatInt(id, 10))
	e.FieldStart("type")
	e.Str(typ)
	e.FieldStart("attributes")
	e.ObjStart()
	attrs(e)
	e.ObjEnd()
	e.ObjEnd()
}

func writeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

// writeMoney writes d rounded to cents.
func writeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func writeNullMoney(e *jx.Encoder, d decimal.NullDecimal) {
	if !d.Valid {
		e.Null()
		return
	}
	writeMoney(e, d.Decimal)
}
