package sftp

// Package sftp implements a transport-agnostic engine for the SFTP
// version 3 file-transfer protocol (draft-ietf-secsh-filexfer-02). The
// caller supplies the byte stream (an SSH subsystem channel, a pair of
// process standard-I/O handles, an in-memory pipe, ...); this package
// never opens a socket or performs authentication itself.

// ProtocolVersion is the highest protocol version this engine speaks.
// Higher-version peers are negotiated down to this value.
const ProtocolVersion = 3

// Message type tags, shared by requests and responses on the wire.
const (
	msgInit     = 1
	msgVersion  = 2
	msgOpen     = 3
	msgClose    = 4
	msgRead     = 5
	msgWrite    = 6
	msgLstat    = 7
	msgFstat    = 8
	msgSetstat  = 9
	msgFsetstat = 10
	msgOpendir  = 11
	msgReaddir  = 12
	msgRemove   = 13
	msgMkdir    = 14
	msgRmdir    = 15
	msgRealpath = 16
	msgStat     = 17
	msgRename   = 18
	msgReadlink = 19
	msgSymlink  = 20

	msgStatus   = 101
	msgHandle   = 102
	msgData     = 103
	msgName     = 104
	msgAttrs    = 105
	msgExtended = 200
)

// Access flags carried in an OPEN request, translated to a conventional
// create/truncate/append open mode by AccessFlagsToOpenMode (backend.go).
const (
	AccessRead   uint32 = 0x00000001
	AccessWrite  uint32 = 0x00000002
	AccessAppend uint32 = 0x00000004
	AccessCreate uint32 = 0x00000008
	AccessTrunc  uint32 = 0x00000010
	AccessExcl   uint32 = 0x00000020
)

// Attribute presence flags (spec.md §3).
const (
	AttrSize        uint32 = 0x00000001
	AttrUIDGID      uint32 = 0x00000002
	AttrPermissions uint32 = 0x00000004
	AttrACModTime   uint32 = 0x00000008
	AttrExtended    uint32 = 0x80000000
)

// DefaultMaxHandles is the handle table's default capacity (spec.md §4.3).
const DefaultMaxHandles = 16

// DefaultReaddirPageSize is the default number of name records returned
// per READDIR response (spec.md §4.3).
const DefaultReaddirPageSize = 128

// DefaultMaxFrameSize is the default ceiling on a single encoded frame's
// payload, enforced by the writer (spec.md §4.1).
const DefaultMaxFrameSize = 1 << 20 // 1 MiB
