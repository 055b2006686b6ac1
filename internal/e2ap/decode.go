package e2ap

import "encoding/binary"

// Decode parses one complete PDU from buf. Structural failures return a
// sentinel error; a well-formed envelope with an unknown
// (class, procedure) pair decodes to a RawPayload so the caller can log
// and drop it.
func Decode(buf []byte) (*PDU, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncated
	}
	if binary.BigEndian.Uint32(buf[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if binary.BigEndian.Uint16(buf[4:6]) != Version {
		return nil, ErrUnsupportedVersion
	}
	if binary.BigEndian.Uint16(buf[6:8]) != HeaderSize {
		return nil, ErrInvalidHeaderLen
	}
	txID := binary.BigEndian.Uint64(buf[8:16])
	msgType := binary.BigEndian.Uint32(buf[16:20])
	payloadLen := binary.BigEndian.Uint64(buf[24:32])

	class := Class(msgType >> 16)
	procedure := Procedure(msgType & 0xffff)
	switch class {
	case ClassInitiatingMessage, ClassSuccessfulOutcome, ClassUnsuccessfulOutcome:
	default:
		return nil, ErrInvalidClass
	}

	if payloadLen > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	rest := buf[HeaderSize:]
	if uint64(len(rest)) < payloadLen {
		return nil, ErrTruncated
	}
	if uint64(len(rest)) > payloadLen {
		return nil, ErrTrailingBytes
	}

	fields, err := parseFields(rest)
	if err != nil {
		return nil, err
	}

	pdu := &PDU{Class: class, Procedure: procedure, TransactionID: txID}
	decoder, known := typedShape(class, procedure)
	if !known {
		pdu.Payload = RawPayload{Fields: fields}
		return pdu, nil
	}
	payload, err := decoder(fieldSet{fields: fields})
	if err != nil {
		return nil, err
	}
	pdu.Payload = payload
	return pdu, nil
}

func parseFields(payload []byte) ([]Field, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	fields := make([]Field, 0, 4)
	for offset := 0; offset < len(payload); {
		if len(payload)-offset < fieldHeaderSize {
			return nil, ErrTruncated
		}
		id := binary.BigEndian.Uint16(payload[offset : offset+2])
		ft := FieldType(payload[offset+2])
		length := binary.BigEndian.Uint32(payload[offset+3 : offset+7])
		offset += fieldHeaderSize
		if length > uint32(len(payload)-offset) {
			return nil, ErrInvalidLength
		}
		value := make([]byte, length)
		copy(value, payload[offset:offset+int(length)])
		fields = append(fields, Field{ID: id, Type: ft, Value: value})
		offset += int(length)
	}
	return fields, nil
}

type payloadDecoder func(fieldSet) (Payload, error)

// typedShape maps each known (class, procedure) pair to its payload
// decoder. Pairs outside this table decode as RawPayload.
func typedShape(c Class, p Procedure) (payloadDecoder, bool) {
	switch {
	case c == ClassInitiatingMessage && p == ProcedureSetup:
		return decodeSetupRequest, true
	case c == ClassSuccessfulOutcome && p == ProcedureSetup:
		return decodeSetupResponse, true
	case c == ClassUnsuccessfulOutcome && p == ProcedureSetup:
		return decodeSetupFailure, true
	case c == ClassInitiatingMessage && p == ProcedureReset:
		return decodeResetRequest, true
	case c == ClassSuccessfulOutcome && p == ProcedureReset:
		return decodeResetResponse, true
	case c == ClassInitiatingMessage && p == ProcedureSubscription:
		return decodeSubscriptionRequest, true
	case c == ClassSuccessfulOutcome && p == ProcedureSubscription:
		return decodeSubscriptionResponse, true
	case c == ClassUnsuccessfulOutcome && p == ProcedureSubscription:
		return decodeSubscriptionFailure, true
	case c == ClassInitiatingMessage && p == ProcedureSubscriptionDelete:
		return decodeSubscriptionDeleteRequest, true
	case c == ClassSuccessfulOutcome && p == ProcedureSubscriptionDelete:
		return decodeSubscriptionDeleteResponse, true
	case c == ClassUnsuccessfulOutcome && p == ProcedureSubscriptionDelete:
		return decodeSubscriptionDeleteFailure, true
	case c == ClassInitiatingMessage && p == ProcedureSubscriptionModify:
		return decodeSubscriptionModifyRequest, true
	case c == ClassSuccessfulOutcome && p == ProcedureSubscriptionModify:
		return decodeSubscriptionModifyConfirm, true
	case c == ClassUnsuccessfulOutcome && p == ProcedureSubscriptionModify:
		return decodeSubscriptionModifyRefuse, true
	default:
		return nil, false
	}
}

func decodeSetupRequest(s fieldSet) (Payload, error) {
	nodeID, err := s.requiredUint64(fieldNodeID)
	if err != nil {
		return nil, err
	}
	var funcs []RANFunction
	for _, f := range s.all(fieldRANFunction) {
		raw, err := f.Bytes()
		if err != nil {
			return nil, err
		}
		fn, err := decodeRANFunction(raw)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, fn)
	}
	return SetupRequest{NodeID: nodeID, Functions: funcs}, nil
}

func decodeSetupResponse(s fieldSet) (Payload, error) {
	ricID, err := s.requiredUint32(fieldRICID)
	if err != nil {
		return nil, err
	}
	var accepted []uint32
	for _, f := range s.all(fieldAcceptedFunction) {
		id, err := f.Uint32()
		if err != nil {
			return nil, err
		}
		accepted = append(accepted, id)
	}
	return SetupResponse{RICID: ricID, AcceptedFunctions: accepted}, nil
}

func decodeSetupFailure(s fieldSet) (Payload, error) {
	cause, err := s.requiredUint8(fieldCause)
	if err != nil {
		return nil, err
	}
	ttw, err := s.optionalUint32(fieldTimeToWait)
	if err != nil {
		return nil, err
	}
	return SetupFailure{Cause: Cause(cause), TimeToWait: ttw}, nil
}

func decodeResetRequest(s fieldSet) (Payload, error) {
	cause, err := s.requiredUint8(fieldCause)
	if err != nil {
		return nil, err
	}
	return ResetRequest{Cause: Cause(cause)}, nil
}

func decodeResetResponse(fieldSet) (Payload, error) {
	return ResetResponse{}, nil
}

func decodeRequestKey(s fieldSet) (requestorID, instanceID uint32, err error) {
	requestorID, err = s.requiredUint32(fieldRequestorID)
	if err != nil {
		return 0, 0, err
	}
	instanceID, err = s.requiredUint32(fieldInstanceID)
	if err != nil {
		return 0, 0, err
	}
	return requestorID, instanceID, nil
}

func decodeSubscriptionRequest(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	functionID, err := s.requiredUint32(fieldFunctionID)
	if err != nil {
		return nil, err
	}
	actions, err := decodeActions(s)
	if err != nil {
		return nil, err
	}
	return SubscriptionRequest{
		RequestorID: requestorID,
		InstanceID:  instanceID,
		FunctionID:  functionID,
		Actions:     actions,
	}, nil
}

func decodeSubscriptionResponse(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	functionID, err := s.requiredUint32(fieldFunctionID)
	if err != nil {
		return nil, err
	}
	var admitted []uint16
	for _, f := range s.all(fieldAdmittedAction) {
		id, err := f.Uint16()
		if err != nil {
			return nil, err
		}
		admitted = append(admitted, id)
	}
	return SubscriptionResponse{
		RequestorID: requestorID,
		InstanceID:  instanceID,
		FunctionID:  functionID,
		Admitted:    admitted,
	}, nil
}

func decodeSubscriptionFailure(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	cause, err := s.requiredUint8(fieldCause)
	if err != nil {
		return nil, err
	}
	return SubscriptionFailure{RequestorID: requestorID, InstanceID: instanceID, Cause: Cause(cause)}, nil
}

func decodeSubscriptionDeleteRequest(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	functionID, err := s.requiredUint32(fieldFunctionID)
	if err != nil {
		return nil, err
	}
	return SubscriptionDeleteRequest{
		RequestorID: requestorID,
		InstanceID:  instanceID,
		FunctionID:  functionID,
	}, nil
}

func decodeSubscriptionDeleteResponse(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	return SubscriptionDeleteResponse{RequestorID: requestorID, InstanceID: instanceID}, nil
}

func decodeSubscriptionDeleteFailure(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	cause, err := s.requiredUint8(fieldCause)
	if err != nil {
		return nil, err
	}
	return SubscriptionDeleteFailure{RequestorID: requestorID, InstanceID: instanceID, Cause: Cause(cause)}, nil
}

func decodeSubscriptionModifyRequest(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	functionID, err := s.requiredUint32(fieldFunctionID)
	if err != nil {
		return nil, err
	}
	actions, err := decodeActions(s)
	if err != nil {
		return nil, err
	}
	return SubscriptionModifyRequest{
		RequestorID: requestorID,
		InstanceID:  instanceID,
		FunctionID:  functionID,
		Actions:     actions,
	}, nil
}

func decodeSubscriptionModifyConfirm(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	return SubscriptionModifyConfirm{RequestorID: requestorID, InstanceID: instanceID}, nil
}

func decodeSubscriptionModifyRefuse(s fieldSet) (Payload, error) {
	requestorID, instanceID, err := decodeRequestKey(s)
	if err != nil {
		return nil, err
	}
	cause, err := s.requiredUint8(fieldCause)
	if err != nil {
		return nil, err
	}
	return SubscriptionModifyRefuse{RequestorID: requestorID, InstanceID: instanceID, Cause: Cause(cause)}, nil
}

func decodeActions(s fieldSet) ([]Action, error) {
	var actions []Action
	for _, f := range s.all(fieldAction) {
		raw, err := f.Bytes()
		if err != nil {
			return nil, err
		}
		if len(raw) != 3 {
			return nil, ErrInvalidFieldValue
		}
		actions = append(actions, Action{
			ID:   binary.BigEndian.Uint16(raw[0:2]),
			Type: ActionType(raw[2]),
		})
	}
	return actions, nil
}

func decodeRANFunction(raw []byte) (RANFunction, error) {
	if len(raw) < 6 {
		return RANFunction{}, ErrInvalidFieldValue
	}
	return RANFunction{
		ID:          binary.BigEndian.Uint32(raw[0:4]),
		Revision:    binary.BigEndian.Uint16(raw[4:6]),
		Description: string(raw[6:]),
	}, nil
}
