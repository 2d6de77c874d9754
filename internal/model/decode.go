package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// The remote backend serves appointment rows in two shapes: the current
// schema (camelCase english field names, matching Appointment's JSON tags
// directly) and a legacy schema with
// Portuguese field names and status values, still returned for rows
// written before the backend migration.
//
// DecodeAppointment discriminates on the presence of the "startAt" /
// "inicio" keys and produces the canonical Appointment either way.

// DecodeAppointment decodes one remote appointment row, current or legacy
// schema, into the canonical model.
func DecodeAppointment(raw json.RawMessage) (Appointment, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Appointment{}, fmt.Errorf("decode appointment: %w", err)
	}

	if _, ok := probe["startAt"]; ok {
		var appt Appointment
		if err := json.Unmarshal(raw, &appt); err != nil {
			return Appointment{}, fmt.Errorf("decode appointment: %w", err)
		}
		return appt, nil
	}

	if _, ok := probe["inicio"]; ok {
		return decodeLegacyAppointment(raw)
	}

	return Appointment{}, fmt.Errorf("decode appointment: unrecognized payload shape")
}

// legacyAppointment mirrors the pre-migration row shape.
type legacyAppointment struct {
	ID              string     `json:"id"`
	EmpresaID       string     `json:"empresaId"`
	Empresa         string     `json:"empresa"`
	Consultor       string     `json:"consultor"`
	CriadoPor       string     `json:"criadoPor"`
	Inicio          time.Time  `json:"inicio"`
	Fim             time.Time  `json:"fim"`
	Situacao        string     `json:"situacao"`
	CheckinEm       *time.Time `json:"checkinEm"`
	CheckinLat      *float64   `json:"checkinLat"`
	CheckinLng      *float64   `json:"checkinLng"`
	CheckinPrecisao *float64   `json:"checkinPrecisao"`
	CheckoutEm      *time.Time `json:"checkoutEm"`
	CheckoutLat     *float64   `json:"checkoutLat"`
	CheckoutLng     *float64   `json:"checkoutLng"`
	Endereco        string     `json:"endereco"`
	MotivoAusencia  string     `json:"motivoAusencia"`
	Observacao      string     `json:"observacao"`
	Oportunidades   []string   `json:"oportunidades"`
	CriadoEm        time.Time  `json:"criadoEm"`
	AtualizadoEm    time.Time  `json:"atualizadoEm"`
}

var legacyStatus = map[string]Status{
	"agendado":     StatusScheduled,
	"em_andamento": StatusInProgress,
	"concluido":    StatusDone,
	"ausente":      StatusAbsent,
}

func decodeLegacyAppointment(raw json.RawMessage) (Appointment, error) {
	var leg legacyAppointment
	if err := json.Unmarshal(raw, &leg); err != nil {
		return Appointment{}, fmt.Errorf("decode legacy appointment: %w", err)
	}

	status, ok := legacyStatus[leg.Situacao]
	if !ok {
		return Appointment{}, fmt.Errorf("decode legacy appointment %s: unknown status %q", leg.ID, leg.Situacao)
	}

	appt := Appointment{
		ID:            leg.ID,
		CompanyID:     leg.EmpresaID,
		CompanyName:   leg.Empresa,
		Consultant:    leg.Consultor,
		CreatedBy:     leg.CriadoPor,
		StartAt:       leg.Inicio,
		EndAt:         leg.Fim,
		Status:        status,
		CheckInAt:     leg.CheckinEm,
		CheckOutAt:    leg.CheckoutEm,
		Address:       leg.Endereco,
		AbsenceReason: leg.MotivoAusencia,
		AbsenceNote:   leg.Observacao,
		Opportunities: leg.Oportunidades,
		CreatedAt:     leg.CriadoEm,
		UpdatedAt:     leg.AtualizadoEm,
	}
	if leg.CheckinEm != nil && leg.CheckinLat != nil && leg.CheckinLng != nil {
		geo := Geo{Lat: *leg.CheckinLat, Lng: *leg.CheckinLng, CapturedAt: *leg.CheckinEm}
		if leg.CheckinPrecisao != nil {
			geo.Accuracy = *leg.CheckinPrecisao
		}
		appt.CheckInGeo = &geo
	}
	if leg.CheckoutEm != nil && leg.CheckoutLat != nil && leg.CheckoutLng != nil {
		appt.CheckOutGeo = &Geo{Lat: *leg.CheckoutLat, Lng: *leg.CheckoutLng, CapturedAt: *leg.CheckoutEm}
	}
	return appt, nil
}
