package sftp

// This file implements the tagged-union request/response model of
// spec.md §3/§4.2: every variant knows its own wire tag and how to
// encode/decode its body after the common (tag, request_id) header.
// INIT/VERSION are the two exceptions that carry no request_id.

// Request is satisfied by every decoded request variant.
type Request interface {
	// id returns the request's correlation id. Init does not carry one
	// on the wire; its id() is meaningless and never consulted.
	id() uint32
}

type InitRequest struct {
	ClientVersion uint32
	Extensions    map[string]string
}

func (InitRequest) id() uint32 { return 0 }

type OpenRequest struct {
	ID    uint32
	Path  string
	Flags uint32
	Attrs Attributes
}

func (r OpenRequest) id() uint32 { return r.ID }

type CloseRequest struct {
	ID     uint32
	Handle []byte
}

func (r CloseRequest) id() uint32 { return r.ID }

type ReadRequest struct {
	ID     uint32
	Handle []byte
	Offset uint64
	Length uint32
}

func (r ReadRequest) id() uint32 { return r.ID }

type WriteRequest struct {
	ID     uint32
	Handle []byte
	Offset uint64
	Data   []byte
}

func (r WriteRequest) id() uint32 { return r.ID }

type LstatRequest struct {
	ID   uint32
	Path string
}

func (r LstatRequest) id() uint32 { return r.ID }

type FstatRequest struct {
	ID     uint32
	Handle []byte
}

func (r FstatRequest) id() uint32 { return r.ID }

type SetstatRequest struct {
	ID    uint32
	Path  string
	Attrs Attributes
}

func (r SetstatRequest) id() uint32 { return r.ID }

type FsetstatRequest struct {
	ID     uint32
	Handle []byte
	Attrs  Attributes
}

func (r FsetstatRequest) id() uint32 { return r.ID }

type OpendirRequest struct {
	ID   uint32
	Path string
}

func (r OpendirRequest) id() uint32 { return r.ID }

type ReaddirRequest struct {
	ID     uint32
	Handle []byte
}

func (r ReaddirRequest) id() uint32 { return r.ID }

type RemoveRequest struct {
	ID   uint32
	Path string
}

func (r RemoveRequest) id() uint32 { return r.ID }

type MkdirRequest struct {
	ID    uint32
	Path  string
	Attrs Attributes
}

func (r MkdirRequest) id() uint32 { return r.ID }

type RmdirRequest struct {
	ID   uint32
	Path string
}

func (r RmdirRequest) id() uint32 { return r.ID }

type RealpathRequest struct {
	ID   uint32
	Path string
}

func (r RealpathRequest) id() uint32 { return r.ID }

type StatRequest struct {
	ID   uint32
	Path string
}

func (r StatRequest) id() uint32 { return r.ID }

type RenameRequest struct {
	ID      uint32
	OldPath string
	NewPath string
}

func (r RenameRequest) id() uint32 { return r.ID }

type ReadlinkRequest struct {
	ID   uint32
	Path string
}

func (r ReadlinkRequest) id() uint32 { return r.ID }

// SymlinkRequest carries both paths using their SFTP meaning
// (LinkPath is the new link, TargetPath is what it points to). The
// wire order is reversed from the draft text, matching widely deployed
// implementations (spec.md §4.5/§9): TargetPath is encoded/decoded
// first, LinkPath second.
type SymlinkRequest struct {
	ID         uint32
	LinkPath   string
	TargetPath string
}

func (r SymlinkRequest) id() uint32 { return r.ID }

// ExtendedRequest carries an uninterpreted payload; the server passes
// RequestName and Payload straight to the Backend (spec.md §4.4/§4.5).
type ExtendedRequest struct {
	ID          uint32
	RequestName string
	Payload     []byte
}

func (r ExtendedRequest) id() uint32 { return r.ID }

// decodeRequest reads the remainder of one request frame, given the
// already-consumed tag and the frame's total body length (used by
// ExtendedRequest to bound its own read via d.consumed).
func decodeRequest(tag byte, bodyLen int, d *frameReader) (Request, error) {
	switch tag {
	case msgOpen:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		path, err := d.readString()
		if err != nil {
			return nil, err
		}
		flags, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		attrs, err := d.readAttrs()
		if err != nil {
			return nil, err
		}
		return OpenRequest{ID: id, Path: path, Flags: flags, Attrs: attrs}, nil
	case msgClose:
		id, h, err := d.readIDHandle()
		return CloseRequest{ID: id, Handle: h}, err
	case msgRead:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		h, err := d.readBinary()
		if err != nil {
			return nil, err
		}
		off, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		length, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return ReadRequest{ID: id, Handle: h, Offset: off, Length: length}, nil
	case msgWrite:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		h, err := d.readBinary()
		if err != nil {
			return nil, err
		}
		off, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		data, err := d.readBinary()
		if err != nil {
			return nil, err
		}
		return WriteRequest{ID: id, Handle: h, Offset: off, Data: data}, nil
	case msgLstat:
		id, p, err := d.readIDPath()
		return LstatRequest{ID: id, Path: p}, err
	case msgFstat:
		id, h, err := d.readIDHandle()
		return FstatRequest{ID: id, Handle: h}, err
	case msgSetstat:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		path, err := d.readString()
		if err != nil {
			return nil, err
		}
		attrs, err := d.readAttrs()
		if err != nil {
			return nil, err
		}
		return SetstatRequest{ID: id, Path: path, Attrs: attrs}, nil
	case msgFsetstat:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		h, err := d.readBinary()
		if err != nil {
			return nil, err
		}
		attrs, err := d.readAttrs()
		if err != nil {
			return nil, err
		}
		return FsetstatRequest{ID: id, Handle: h, Attrs: attrs}, nil
	case msgOpendir:
		id, p, err := d.readIDPath()
		return OpendirRequest{ID: id, Path: p}, err
	case msgReaddir:
		id, h, err := d.readIDHandle()
		return ReaddirRequest{ID: id, Handle: h}, err
	case msgRemove:
		id, p, err := d.readIDPath()
		return RemoveRequest{ID: id, Path: p}, err
	case msgMkdir:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		path, err := d.readString()
		if err != nil {
			return nil, err
		}
		attrs, err := d.readAttrs()
		if err != nil {
			return nil, err
		}
		return MkdirRequest{ID: id, Path: path, Attrs: attrs}, nil
	case msgRmdir:
		id, p, err := d.readIDPath()
		return RmdirRequest{ID: id, Path: p}, err
	case msgRealpath:
		id, p, err := d.readIDPath()
		return RealpathRequest{ID: id, Path: p}, err
	case msgStat:
		id, p, err := d.readIDPath()
		return StatRequest{ID: id, Path: p}, err
	case msgRename:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		oldPath, err := d.readString()
		if err != nil {
			return nil, err
		}
		newPath, err := d.readString()
		if err != nil {
			return nil, err
		}
		return RenameRequest{ID: id, OldPath: oldPath, NewPath: newPath}, nil
	case msgReadlink:
		id, p, err := d.readIDPath()
		return ReadlinkRequest{ID: id, Path: p}, err
	case msgSymlink:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		// Reversed from the draft: target first, link second (spec.md §4.5).
		target, err := d.readString()
		if err != nil {
			return nil, err
		}
		link, err := d.readString()
		if err != nil {
			return nil, err
		}
		return SymlinkRequest{ID: id, LinkPath: link, TargetPath: target}, nil
	case msgExtended:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		var payload []byte
		if left := bodyLen - d.consumed; left > 0 {
			payload = make([]byte, left)
			if err := d.readFull(payload); err != nil {
				return nil, err
			}
		}
		return ExtendedRequest{ID: id, RequestName: name, Payload: payload}, nil
	default:
		return nil, protocolErrorf("unknown request tag %d", tag)
	}
}

func (d *frameReader) readIDPath() (uint32, string, error) {
	id, err := d.readUint32()
	if err != nil {
		return 0, "", err
	}
	p, err := d.readString()
	return id, p, err
}

func (d *frameReader) readIDHandle() (uint32, []byte, error) {
	id, err := d.readUint32()
	if err != nil {
		return 0, nil, err
	}
	h, err := d.readBinary()
	return id, h, err
}

// encode writes a request's tag, request_id (if any), and body.
func encodeRequest(e *frameWriter, req Request) {
	switch r := req.(type) {
	case InitRequest:
		e.writeByte(msgInit)
		e.writeUint32(r.ClientVersion)
		for k, v := range r.Extensions {
			e.writeString(k)
			e.writeString(v)
		}
	case OpenRequest:
		e.writeByte(msgOpen)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
		e.writeUint32(r.Flags)
		e.writeAttrs(r.Attrs)
	case CloseRequest:
		e.writeByte(msgClose)
		e.writeUint32(r.ID)
		e.writeBinary(r.Handle)
	case ReadRequest:
		e.writeByte(msgRead)
		e.writeUint32(r.ID)
		e.writeBinary(r.Handle)
		e.writeUint64(r.Offset)
		e.writeUint32(r.Length)
	case WriteRequest:
		e.writeByte(msgWrite)
		e.writeUint32(r.ID)
		e.writeBinary(r.Handle)
		e.writeUint64(r.Offset)
		e.writeBinary(r.Data)
	case LstatRequest:
		e.writeByte(msgLstat)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
	case FstatRequest:
		e.writeByte(msgFstat)
		e.writeUint32(r.ID)
		e.writeBinary(r.Handle)
	case SetstatRequest:
		e.writeByte(msgSetstat)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
		e.writeAttrs(r.Attrs)
	case FsetstatRequest:
		e.writeByte(msgFsetstat)
		e.writeUint32(r.ID)
		e.writeBinary(r.Handle)
		e.writeAttrs(r.Attrs)
	case OpendirRequest:
		e.writeByte(msgOpendir)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
	case ReaddirRequest:
		e.writeByte(msgReaddir)
		e.writeUint32(r.ID)
		e.writeBinary(r.Handle)
	case RemoveRequest:
		e.writeByte(msgRemove)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
	case MkdirRequest:
		e.writeByte(msgMkdir)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
		e.writeAttrs(r.Attrs)
	case RmdirRequest:
		e.writeByte(msgRmdir)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
	case RealpathRequest:
		e.writeByte(msgRealpath)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
	case StatRequest:
		e.writeByte(msgStat)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
	case RenameRequest:
		e.writeByte(msgRename)
		e.writeUint32(r.ID)
		e.writeString(r.OldPath)
		e.writeString(r.NewPath)
	case ReadlinkRequest:
		e.writeByte(msgReadlink)
		e.writeUint32(r.ID)
		e.writeString(r.Path)
	case SymlinkRequest:
		e.writeByte(msgSymlink)
		e.writeUint32(r.ID)
		// Reversed from the draft: target first, link second (spec.md §4.5).
		e.writeString(r.TargetPath)
		e.writeString(r.LinkPath)
	case ExtendedRequest:
		e.writeByte(msgExtended)
		e.writeUint32(r.ID)
		e.writeString(r.RequestName)
		e.buf = append(e.buf, r.Payload...)
	default:
		panic("sftp: unhandled request type in encodeRequest")
	}
}

// Response is satisfied by every decoded response variant except
// VersionResponse, which carries no request_id.
type Response interface {
	id() uint32
}

type VersionResponse struct {
	Version    uint32
	Extensions map[string]string
}

func (VersionResponse) id() uint32 { return 0 }

type StatusResponse struct {
	ID      uint32
	Status  StatusCode
	Message string
	Lang    string
}

func (r StatusResponse) id() uint32 { return r.ID }

type HandleResponse struct {
	ID     uint32
	Handle []byte
}

func (r HandleResponse) id() uint32 { return r.ID }

type DataResponse struct {
	ID   uint32
	Data []byte
}

func (r DataResponse) id() uint32 { return r.ID }

type NameResponse struct {
	ID    uint32
	Names []Name
}

func (r NameResponse) id() uint32 { return r.ID }

type AttrsResponse struct {
	ID    uint32
	Attrs Attributes
}

func (r AttrsResponse) id() uint32 { return r.ID }

// ExtendedResponse is the untyped shape of an EXTENDED response: raw
// bytes after the request_id. The server builds one from the backend's
// reply. On the client, a request sent with a custom decoder gets the
// decoded value instead; a request sent without one receives this
// type as a successful result, and Client.Extended returns its Payload
// unchanged. An EXTENDED response with no registered decoder is not
// treated as a protocol error.
type ExtendedResponse struct {
	ID      uint32
	Payload []byte
}

func (r ExtendedResponse) id() uint32 { return r.ID }

// writeStatus encodes a STATUS response. For protocolVersion < 3 the
// message/language fields are omitted (spec.md §4.5/§6).
func writeStatus(e *frameWriter, protocolVersion uint32, id uint32, status StatusCode, message, lang string) {
	e.writeByte(msgStatus)
	e.writeUint32(id)
	e.writeUint32(uint32(status))
	if protocolVersion >= 3 {
		if message == "" {
			message = status.DefaultMessage()
		}
		e.writeString(message)
		e.writeString(lang)
	}
}

func writeHandle(e *frameWriter, id uint32, handle []byte) {
	e.writeByte(msgHandle)
	e.writeUint32(id)
	e.writeBinary(handle)
}

func writeData(e *frameWriter, id uint32, data []byte) {
	e.writeByte(msgData)
	e.writeUint32(id)
	e.writeBinary(data)
}

func writeNames(e *frameWriter, id uint32, names []Name) {
	e.writeByte(msgName)
	e.writeUint32(id)
	e.writeUint32(uint32(len(names)))
	for _, n := range names {
		e.writeName(n)
	}
}

func writeAttrsResponse(e *frameWriter, id uint32, attrs Attributes) {
	e.writeByte(msgAttrs)
	e.writeUint32(id)
	e.writeAttrs(attrs)
}

func writeVersion(e *frameWriter, version uint32, extensions map[string]string) {
	e.writeByte(msgVersion)
	e.writeUint32(version)
	for k, v := range extensions {
		e.writeString(k)
		e.writeString(v)
	}
}

func writeExtendedReply(e *frameWriter, id uint32, payload []byte) {
	e.writeByte(msgExtended)
	e.writeUint32(id)
	e.buf = append(e.buf, payload...)
}

// extendedDecoder parses the raw payload of an EXTENDED response (the
// bytes following tag+request_id) into a caller-defined value.
// Registered per pending request at send time (spec.md §4.2).
type extendedDecoder func(payload []byte) (any, error)

// decodeResponse decodes the remainder of a non-EXTENDED response
// frame, given the tag already read off the wire.
func decodeResponse(tag byte, protocolVersion uint32, d *frameReader) (Response, error) {
	switch tag {
	case msgStatus:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		code, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		var message, lang string
		if protocolVersion >= 3 {
			if message, err = d.readString(); err != nil {
				return nil, err
			}
			if lang, err = d.readString(); err != nil {
				return nil, err
			}
		}
		return StatusResponse{ID: id, Status: StatusCode(code), Message: message, Lang: lang}, nil
	case msgHandle:
		id, h, err := d.readIDHandle()
		return HandleResponse{ID: id, Handle: h}, err
	case msgData:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		data, err := d.readBinary()
		if err != nil {
			return nil, err
		}
		return DataResponse{ID: id, Data: data}, nil
	case msgName:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		count, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		names := make([]Name, 0, count)
		for i := uint32(0); i < count; i++ {
			n, err := d.readName()
			if err != nil {
				return nil, err
			}
			names = append(names, n)
		}
		return NameResponse{ID: id, Names: names}, nil
	case msgAttrs:
		id, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		attrs, err := d.readAttrs()
		if err != nil {
			return nil, err
		}
		return AttrsResponse{ID: id, Attrs: attrs}, nil
	default:
		return nil, protocolErrorf("unknown response tag %d", tag)
	}
}
