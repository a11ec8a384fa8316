package device

import (
	"errors"
	"fmt"
	"image"
	"os"
	"runtime"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DRM ioctl argument structs, laid out as in <drm/drm_mode.h>.

type drmGetCap struct {
	capability uint64
	value      uint64
}

type drmModeCardRes struct {
	fbIDPtr        uint64
	crtcIDPtr      uint64
	connectorIDPtr uint64
	encoderIDPtr   uint64
	countFbs       uint32
	countCrtcs     uint32
	countConns     uint32
	countEncoders  uint32
	minWidth       uint32
	maxWidth       uint32
	minHeight      uint32
	maxHeight      uint32
}

type drmModeInfo struct {
	clock      uint32
	hdisplay   uint16
	hsyncStart uint16
	hsyncEnd   uint16
	htotal     uint16
	hskew      uint16
	vdisplay   uint16
	vsyncStart uint16
	vsyncEnd   uint16
	vtotal     uint16
	vscan      uint16
	vrefresh   uint32
	flags      uint32
	typ        uint32
	name       [32]byte
}

type drmModeCrtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x, y             uint32
	gammaSize        uint32
	modeValid        uint32
	mode             drmModeInfo
}

type drmModeGetEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCrtcs  uint32
	possibleClones uint32
}

type drmModeGetConnector struct {
	encodersPtr     uint64
	modesPtr        uint64
	propsPtr        uint64
	propValuesPtr   uint64
	countModes      uint32
	countProps      uint32
	countEncoders   uint32
	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32
	connection      uint32
	mmWidth         uint32
	mmHeight        uint32
	subpixel        uint32
	pad             uint32
}

type drmModeFbCmd struct {
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	bpp    uint32
	depth  uint32
	handle uint32
}

type drmModeFbDirtyCmd struct {
	fbID     uint32
	flags    uint32
	color    uint32
	numClips uint32
	clipsPtr uint64
}

type drmClipRect struct {
	x1, y1, x2, y2 uint16
}

type drmModeCreateDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type drmModeMapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type drmModeDestroyDumb struct {
	handle uint32
}

const (
	drmCapDumbBuffer   = 0x1
	drmModeConnected   = 1
	drmIoctlBase       = 'd'
	iocReadWrite       = 3
	iocDirShift        = 30
	iocSizeShift       = 16
	iocTypeShift       = 8
	drmIoctlGetCap     = 0x0c
	drmIoctlGetRes     = 0xa0
	drmIoctlSetCrtc    = 0xa2
	drmIoctlGetEncoder = 0xa6
	drmIoctlGetConn    = 0xa7
	drmIoctlAddFB      = 0xae
	drmIoctlRmFB       = 0xaf
	drmIoctlDirtyFB    = 0xb1
	drmIoctlCreateDumb = 0xb2
	drmIoctlMapDumb    = 0xb3
	drmIoctlDestroy    = 0xb4
)

func drmIOWR(nr, size uintptr) uintptr {
	return iocReadWrite<<iocDirShift | size<<iocSizeShift | drmIoctlBase<<iocTypeShift | nr
}

func ioctl(fd int, name string, nr uintptr, arg unsafe.Pointer, size uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), drmIOWR(nr, size), uintptr(arg))
	if errno != 0 {
		return fmt.Errorf("ioctl(%s): %w", name, errno)
	}
	return nil
}

// Card is a DRM device scanning out a single dumb buffer. Portrait-native
// panels are rotated by 90 degrees so that Bounds is always landscape.
type Card struct {
	f      *os.File
	fd     int
	fbID   uint32
	handle uint32
	mmap   []byte
	pitch  int
	rotate bool
	bounds image.Rectangle
}

// OpenCard opens the DRM node at path and sets up a framebuffer on its
// first connected connector.
func OpenCard(path string) (*Card, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, classify("open "+path, err)
	}
	c, err := setupCard(f)
	if err != nil {
		f.Close()
		return nil, classify(path, err)
	}
	return c, nil
}

func setupCard(f *os.File) (*Card, error) {
	fd := int(f.Fd())
	caps := drmGetCap{capability: drmCapDumbBuffer}
	if err := ioctl(fd, "DRM_IOCTL_GET_CAP", drmIoctlGetCap, unsafe.Pointer(&caps), unsafe.Sizeof(caps)); err != nil {
		return nil, err
	}
	if caps.value != 1 {
		return nil, fmt.Errorf("%w: no dumb buffer support", ErrUnavailable)
	}

	conns, crtcs, err := cardResources(fd)
	if err != nil {
		return nil, err
	}
	connID, mode, crtcID, err := pickConnector(fd, conns, crtcs)
	if err != nil {
		return nil, err
	}

	creq := drmModeCreateDumb{
		width:  uint32(mode.hdisplay),
		height: uint32(mode.vdisplay),
		bpp:    32,
	}
	if err := ioctl(fd, "DRM_IOCTL_MODE_CREATE_DUMB", drmIoctlCreateDumb, unsafe.Pointer(&creq), unsafe.Sizeof(creq)); err != nil {
		return nil, err
	}
	c := &Card{
		f:      f,
		fd:     fd,
		handle: creq.handle,
		pitch:  int(creq.pitch),
	}
	fbcmd := drmModeFbCmd{
		width:  creq.width,
		height: creq.height,
		pitch:  creq.pitch,
		bpp:    32,
		depth:  24,
		handle: creq.handle,
	}
	if err := ioctl(fd, "DRM_IOCTL_MODE_ADDFB", drmIoctlAddFB, unsafe.Pointer(&fbcmd), unsafe.Sizeof(fbcmd)); err != nil {
		c.destroy()
		return nil, err
	}
	c.fbID = fbcmd.fbID

	mreq := drmModeMapDumb{handle: creq.handle}
	if err := ioctl(fd, "DRM_IOCTL_MODE_MAP_DUMB", drmIoctlMapDumb, unsafe.Pointer(&mreq), unsafe.Sizeof(mreq)); err != nil {
		c.destroy()
		return nil, err
	}
	c.mmap, err = unix.Mmap(fd, int64(mreq.offset), int(creq.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		c.destroy()
		return nil, fmt.Errorf("framebuffer mmap failed: %w", err)
	}
	clear(c.mmap)

	crtc := drmModeCrtc{
		setConnectorsPtr: uint64(uintptr(unsafe.Pointer(&connID))),
		countConnectors:  1,
		crtcID:           crtcID,
		fbID:             c.fbID,
		modeValid:        1,
		mode:             mode,
	}
	err = ioctl(fd, "DRM_IOCTL_MODE_SETCRTC", drmIoctlSetCrtc, unsafe.Pointer(&crtc), unsafe.Sizeof(crtc))
	runtime.KeepAlive(&connID)
	if err != nil {
		c.destroy()
		return nil, err
	}

	w, h := int(mode.hdisplay), int(mode.vdisplay)
	if w < h {
		c.rotate = true
		w, h = h, w
	}
	c.bounds = image.Rect(0, 0, w, h)
	log.Infof("Display: %dx%d (%s), rotated=%v", mode.hdisplay, mode.vdisplay, cstring(mode.name[:]), c.rotate)
	return c, nil
}

func cardResources(fd int) (conns, crtcs []uint32, err error) {
	var res drmModeCardRes
	if err := ioctl(fd, "DRM_IOCTL_MODE_GETRESOURCES", drmIoctlGetRes, unsafe.Pointer(&res), unsafe.Sizeof(res)); err != nil {
		return nil, nil, err
	}
	if res.countConns == 0 || res.countCrtcs == 0 {
		return nil, nil, fmt.Errorf("%w: no connectors", ErrUnavailable)
	}
	conns = make([]uint32, res.countConns)
	crtcs = make([]uint32, res.countCrtcs)
	res = drmModeCardRes{
		connectorIDPtr: uint64(uintptr(unsafe.Pointer(&conns[0]))),
		crtcIDPtr:      uint64(uintptr(unsafe.Pointer(&crtcs[0]))),
		countConns:     uint32(len(conns)),
		countCrtcs:     uint32(len(crtcs)),
	}
	err = ioctl(fd, "DRM_IOCTL_MODE_GETRESOURCES", drmIoctlGetRes, unsafe.Pointer(&res), unsafe.Sizeof(res))
	runtime.KeepAlive(conns)
	runtime.KeepAlive(crtcs)
	if err != nil {
		return nil, nil, err
	}
	return conns[:min(len(conns), int(res.countConns))], crtcs[:min(len(crtcs), int(res.countCrtcs))], nil
}

// pickConnector returns the first connected connector with a mode, its
// preferred mode and a CRTC to drive it.
func pickConnector(fd int, conns, crtcs []uint32) (uint32, drmModeInfo, uint32, error) {
	for _, id := range conns {
		conn := drmModeGetConnector{connectorID: id}
		if err := ioctl(fd, "DRM_IOCTL_MODE_GETCONNECTOR", drmIoctlGetConn, unsafe.Pointer(&conn), unsafe.Sizeof(conn)); err != nil {
			return 0, drmModeInfo{}, 0, err
		}
		if conn.connection != drmModeConnected || conn.countModes == 0 {
			continue
		}
		modes := make([]drmModeInfo, conn.countModes)
		conn = drmModeGetConnector{
			connectorID: id,
			modesPtr:    uint64(uintptr(unsafe.Pointer(&modes[0]))),
			countModes:  uint32(len(modes)),
		}
		err := ioctl(fd, "DRM_IOCTL_MODE_GETCONNECTOR", drmIoctlGetConn, unsafe.Pointer(&conn), unsafe.Sizeof(conn))
		runtime.KeepAlive(modes)
		if err != nil {
			return 0, drmModeInfo{}, 0, err
		}

		crtc := crtcs[0]
		if conn.encoderID != 0 {
			enc := drmModeGetEncoder{encoderID: conn.encoderID}
			if err := ioctl(fd, "DRM_IOCTL_MODE_GETENCODER", drmIoctlGetEncoder, unsafe.Pointer(&enc), unsafe.Sizeof(enc)); err == nil && enc.crtcID != 0 {
				crtc = enc.crtcID
			}
		}
		return id, modes[0], crtc, nil
	}
	return 0, drmModeInfo{}, 0, fmt.Errorf("%w: no connected display", ErrUnavailable)
}

// Bounds returns the logical, landscape panel rectangle.
func (c *Card) Bounds() image.Rectangle { return c.bounds }

// Write copies the damaged areas of img into the framebuffer and flushes
// them to the panel.
func (c *Card) Write(img *image.RGBA, damage []image.Rectangle) error {
	var clips []drmClipRect
	for _, r := range damage {
		r = r.Intersect(c.bounds)
		if r.Empty() {
			continue
		}
		copyRect(c.mmap, c.pitch, img, r, c.rotate, c.bounds.Dy())
		d := deviceRect(r, c.rotate, c.bounds.Dy())
		clips = append(clips, drmClipRect{
			x1: uint16(d.Min.X), y1: uint16(d.Min.Y),
			x2: uint16(d.Max.X), y2: uint16(d.Max.Y),
		})
	}
	if len(clips) == 0 {
		return nil
	}
	cmd := drmModeFbDirtyCmd{
		fbID:     c.fbID,
		numClips: uint32(len(clips)),
		clipsPtr: uint64(uintptr(unsafe.Pointer(&clips[0]))),
	}
	err := ioctl(c.fd, "DRM_IOCTL_MODE_DIRTYFB", drmIoctlDirtyFB, unsafe.Pointer(&cmd), unsafe.Sizeof(cmd))
	runtime.KeepAlive(clips)
	// Drivers scanning out continuously do not implement dirty flushing.
	if err != nil && !errors.Is(err, unix.ENOSYS) && !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.EOPNOTSUPP) {
		return classify("flush framebuffer", err)
	}
	return nil
}

// Close frees the framebuffer and closes the device.
func (c *Card) Close() error {
	c.destroy()
	return c.f.Close()
}

func (c *Card) destroy() {
	if c.mmap != nil {
		unix.Munmap(c.mmap)
		c.mmap = nil
	}
	if c.fbID != 0 {
		id := c.fbID
		ioctl(c.fd, "DRM_IOCTL_MODE_RMFB", drmIoctlRmFB, unsafe.Pointer(&id), unsafe.Sizeof(id))
		c.fbID = 0
	}
	if c.handle != 0 {
		d := drmModeDestroyDumb{handle: c.handle}
		ioctl(c.fd, "DRM_IOCTL_MODE_DESTROY_DUMB", drmIoctlDestroy, unsafe.Pointer(&d), unsafe.Sizeof(d))
		c.handle = 0
	}
}

// deviceRect maps a logical rectangle to framebuffer coordinates. With
// rotation, logical (x, y) lands on device column h-1-y, row x.
func deviceRect(r image.Rectangle, rotate bool, h int) image.Rectangle {
	if !rotate {
		return r
	}
	return image.Rect(h-r.Max.Y, r.Min.X, h-r.Min.Y, r.Max.X)
}

// copyRect writes r of src into an XRGB8888 framebuffer.
func copyRect(dst []byte, pitch int, src *image.RGBA, r image.Rectangle, rotate bool, h int) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		si := src.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			col, row := x, y
			if rotate {
				col, row = h-1-y, x
			}
			di := row*pitch + col*4
			dst[di] = src.Pix[si+2]
			dst[di+1] = src.Pix[si+1]
			dst[di+2] = src.Pix[si]
			dst[di+3] = 0
			si += 4
		}
	}
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
