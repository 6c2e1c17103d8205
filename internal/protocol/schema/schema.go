package schema

import (
	"fmt"

	"github.com/danmuck/opencab/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Record type IDs from the parcel contract.
const (
	RecClock            uint32 = 1
	RecClockV2          uint32 = 2
	RecHOSStatus        uint32 = 3
	RecHOSStatusV2      uint32 = 4
	RecLoginCredentials uint32 = 10
	RecDriverSession    uint32 = 11
	RecDriver           uint32 = 12
	RecVehicleInfo      uint32 = 20
	RecVehicleInfoV2    uint32 = 21
)

// Field IDs from the parcel contract.
const (
	FieldLabel              uint16 = 1
	FieldValue              uint16 = 2
	FieldValueType          uint16 = 3
	FieldImportant          uint16 = 4
	FieldLimitsDrivingRange uint16 = 5
	FieldDurationSeconds    uint16 = 6

	FieldClocks       uint16 = 100
	FieldManageAction uint16 = 101
	FieldLogoutAction uint16 = 102

	FieldToken     uint16 = 200
	FieldProvider  uint16 = 201
	FieldAuthority uint16 = 202

	FieldUsername         uint16 = 300
	FieldLoginCredentials uint16 = 301
	FieldDriving          uint16 = 302

	FieldVIN       uint16 = 400
	FieldMoving    uint16 = 401
	FieldVehicleID uint16 = 402
	FieldInGear    uint16 = 403
)

// Requirement declares one known field of a record. Optional fields are type
// checked when present and tolerated when absent.
type Requirement struct {
	ID       uint16
	Type     uint8
	Required bool
}

type ValidationError struct {
	RecordType uint32
	FieldID    uint16
	Reason     string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: record_type=%d: %s", e.RecordType, e.Reason)
	}
	return fmt.Sprintf("schema: record_type=%d field=%d: %s", e.RecordType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	RecClock: {
		{FieldLabel, tlv.TypeString, true},
		{FieldValue, tlv.TypeString, false},
		{FieldValueType, tlv.TypeString, true},
		{FieldImportant, tlv.TypeBool, false},
		{FieldLimitsDrivingRange, tlv.TypeBool, false},
	},
	RecClockV2: {
		{FieldLabel, tlv.TypeString, true},
		{FieldValue, tlv.TypeString, false},
		{FieldValueType, tlv.TypeString, true},
		{FieldImportant, tlv.TypeBool, false},
		{FieldLimitsDrivingRange, tlv.TypeBool, false},
		{FieldDurationSeconds, tlv.TypeF64, false},
	},
	RecHOSStatus: {
		{FieldClocks, tlv.TypeBytes, true},
		{FieldManageAction, tlv.TypeString, false},
	},
	RecHOSStatusV2: {
		{FieldClocks, tlv.TypeBytes, true},
		{FieldManageAction, tlv.TypeString, false},
		{FieldLogoutAction, tlv.TypeString, false},
	},
	RecLoginCredentials: {
		{FieldToken, tlv.TypeString, false},
		{FieldProvider, tlv.TypeString, true},
		{FieldAuthority, tlv.TypeString, true},
	},
	RecDriverSession: {
		{FieldUsername, tlv.TypeString, true},
		{FieldLoginCredentials, tlv.TypeBytes, false},
	},
	RecDriver: {
		{FieldUsername, tlv.TypeString, true},
		{FieldDriving, tlv.TypeBool, false},
	},
	RecVehicleInfo: {
		{FieldVIN, tlv.TypeString, true},
		{FieldMoving, tlv.TypeBool, false},
	},
	RecVehicleInfoV2: {
		{FieldVIN, tlv.TypeString, true},
		{FieldVehicleID, tlv.TypeString, false},
		{FieldInGear, tlv.TypeBool, true},
		{FieldMoving, tlv.TypeBool, false},
	},
}

// Validate enforces required fields and field types for a record type.
// Unknown fields are ignored so newer writers stay readable.
func Validate(recordType uint32, fields []tlv.Field) error {
	log.Trace().Msgf("schema.Validate record_type=%d fields=%d", recordType, len(fields))
	reqs, ok := requirements[recordType]
	if !ok {
		log.Error().Msgf("schema.Validate unknown record_type=%d", recordType)
		return ValidationError{RecordType: recordType, Reason: "unknown record_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			if !req.Required {
				continue
			}
			log.Error().Msgf(
				"schema.Validate missing field record_type=%d field_id=%d",
				recordType,
				req.ID,
			)
			return ValidationError{RecordType: recordType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().Msgf(
				"schema.Validate type mismatch record_type=%d field_id=%d got=%d want=%d",
				recordType,
				req.ID,
				f.Type,
				req.Type,
			)
			return ValidationError{RecordType: recordType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
