package channel

import (
	"fmt"

	"github.com/nerrad567/gray-logic-knxlink/internal/cemi"
	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// Tunneling returns the KNXnet/IP link layer tunneling protocol.
//
// Payloads are cEMI L_Data frames. A request is confirmed by the
// matching L_Data.con from the gateway.
func Tunneling() Protocol {
	return Protocol{
		Name:                 "tunneling",
		RequestService:       knxnet.ServiceTunnelingRequest,
		AckService:           knxnet.ServiceTunnelingAck,
		Version:              knxnet.Version10,
		CRI:                  knxnet.TunnelCRI(),
		SupportsConfirmation: true,
		Codec:                tunnelCodec{},
	}
}

type tunnelCodec struct{}

func (tunnelCodec) Encode(svc Service) ([]byte, error) {
	switch f := svc.(type) {
	case cemi.LData:
		return f.Encode(), nil
	case *cemi.LData:
		return f.Encode(), nil
	default:
		return nil, fmt.Errorf("%w: tunneling carries cEMI frames, got %T", ErrUnsupported, svc)
	}
}

func (tunnelCodec) Decode(payload []byte) (Service, error) {
	f, err := cemi.Decode(payload)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (tunnelCodec) Deliverable(svc Service) bool {
	f, ok := svc.(cemi.LData)
	return ok && (f.Code == cemi.LDataInd || f.Code == cemi.LDataCon)
}

func (tunnelCodec) Confirms(req, got Service) (bool, error) {
	con, ok := got.(cemi.LData)
	if !ok || con.Code != cemi.LDataCon {
		return false, nil
	}
	var r cemi.LData
	switch v := req.(type) {
	case cemi.LData:
		r = v
	case *cemi.LData:
		r = *v
	default:
		return false, nil
	}
	if con.Destination != r.Destination || con.APCI != r.APCI {
		return false, nil
	}
	if !con.ConfirmOK() {
		return true, fmt.Errorf("%w: %s", ErrNegativeConfirmation, con)
	}
	return true, nil
}

func (tunnelCodec) Probe() Service { return nil }
