package ec

import (
	"sync"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/pkg/errors"
)

// The firmware exposes WmiBrightnessNotify under this GUID in root\wmi
const (
	brightnessGUID = "{603E9613-EF25-4338-A3D0-C46177516DB7}"
	wmiNamespace   = `root\wmi`
	wmiClassName   = "WmiBrightnessNotify"
	wmiMethodName  = "Notify"
)

type wmi struct {
	mu       sync.Mutex
	unknown  *ole.IUnknown
	locator  *ole.IDispatch
	service  *ole.IDispatch
	instance *ole.IDispatch
}

var _ WMI = &wmi{}

// NewWMI connects to the firmware brightness method via OLE. It returns an
// error if the machine does not expose the interface.
func NewWMI() (WMI, error) {
	ole.CoInitialize(0)

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return nil, errors.Wrap(err, "ec: cannot create WbemScripting locator")
	}

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		unknown.Release()
		return nil, errors.Wrap(err, "ec: cannot query IDispatch")
	}

	serviceRaw, err := oleutil.CallMethod(locator, "ConnectServer", nil, wmiNamespace)
	if err != nil {
		locator.Release()
		unknown.Release()
		return nil, errors.Wrapf(err, "ec: cannot connect to %s", wmiNamespace)
	}
	service := serviceRaw.ToIDispatch()

	instanceRaw, err := oleutil.CallMethod(service, "Get", wmiClassName+"=@")
	if err != nil {
		service.Release()
		locator.Release()
		unknown.Release()
		return nil, errors.Wrapf(err, "ec: firmware does not expose %s (%s)", wmiClassName, brightnessGUID)
	}

	return &wmi{
		unknown:  unknown,
		locator:  locator,
		service:  service,
		instance: instanceRaw.ToIDispatch(),
	}, nil
}

func (w *wmi) Evaluate(id Method, args []byte) ([]byte, error) {
	if len(args) < argsBufferLength {
		return nil, errors.Errorf("ec: args should be %d bytes", argsBufferLength)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.instance == nil {
		return nil, errors.New("ec: interface already closed")
	}

	resultRaw, err := oleutil.CallMethod(w.instance, wmiMethodName, int32(id), args)
	if err != nil {
		return nil, errors.Wrap(err, "ec: EC backlight control failed")
	}
	defer resultRaw.Clear()

	out, ok := resultRaw.Value().([]byte)
	if !ok {
		return nil, errors.New("ec: unexpected output buffer from firmware")
	}

	return out, nil
}

func (w *wmi) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.instance == nil {
		return nil
	}

	w.instance.Release()
	w.service.Release()
	w.locator.Release()
	w.unknown.Release()
	w.instance = nil

	ole.CoUninitialize()

	return nil
}
