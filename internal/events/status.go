package events

import "github.com/senses3/coolercontrol/internal/device"

// StatusResponse is the composite payload published once per tick on
// the /sse/status stream and returned by GET /status.
type StatusResponse struct {
	Devices []DeviceStatusDTO `json:"devices"`
}

// DeviceStatusDTO pairs a device UID with its latest status, the shape
// the transport layer serializes for GET /devices.
type DeviceStatusDTO struct {
	UID    string               `json:"uid"`
	Status device.DeviceStatus  `json:"status"`
}
