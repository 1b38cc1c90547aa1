package channel

import (
	"fmt"

	"github.com/nerrad567/gray-logic-knxlink/internal/baos"
	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// ObjectServer returns the object server (BAOS) protocol.
//
// The gateway answers requests with responses; confirmations do not
// exist. DatapointValue and ServerItem indications arrive unsolicited.
// On stream transports the channel is kept alive by reading the
// "time since reset" server item.
func ObjectServer() Protocol {
	return Protocol{
		Name:           "objectserver",
		RequestService: knxnet.ServiceObjectServerRequest,
		AckService:     knxnet.ServiceObjectServerAck,
		Version:        knxnet.VersionObjectServer,
		CRI:            knxnet.CRI{ConnectionType: knxnet.ConnectionTypeObjectServer},
		Codec:          objectServerCodec{},
	}
}

type objectServerCodec struct{}

func (objectServerCodec) Encode(svc Service) ([]byte, error) {
	var m baos.Message
	switch v := svc.(type) {
	case baos.Message:
		m = v
	case *baos.Message:
		m = *v
	default:
		return nil, fmt.Errorf("%w: object server carries object server messages, got %T", ErrUnsupported, svc)
	}
	if m.Subservice.IsResponse() || m.Subservice.IsIndication() {
		return nil, fmt.Errorf("%w: cannot send %s", ErrUnsupported, m.Subservice)
	}
	return m.Encode()
}

func (objectServerCodec) Decode(payload []byte) (Service, error) {
	m, err := baos.Decode(payload)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (objectServerCodec) Deliverable(svc Service) bool {
	m, ok := svc.(baos.Message)
	return ok && (m.Subservice.IsResponse() || m.Subservice.IsIndication())
}

func (objectServerCodec) Confirms(_, _ Service) (bool, error) { return false, nil }

func (objectServerCodec) Probe() Service {
	return baos.NewGetServerItem(baos.ItemTimeSinceReset, 1)
}
