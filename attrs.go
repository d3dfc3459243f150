package sftp

import (
	"fmt"
	"strings"
	"time"
)

// Attributes is the SFTP v3 attribute record (spec.md §3). Every field
// is optional; presence is tracked explicitly rather than through zero
// values, because a POSIX mode of 0 or a size of 0 are both legitimate
// values a peer may actually want to send.
type Attributes struct {
	HasSize bool
	Size    uint64

	HasUIDGID bool
	UID, GID  uint32

	HasPermissions bool
	Permissions    uint32

	HasACModTime       bool
	AccessTime         uint32 // seconds since epoch
	ModifyTime         uint32

	Extended map[string]string
}

func (a Attributes) flags() uint32 {
	var f uint32
	if a.HasSize {
		f |= AttrSize
	}
	if a.HasUIDGID {
		f |= AttrUIDGID
	}
	if a.HasPermissions {
		f |= AttrPermissions
	}
	if a.HasACModTime {
		f |= AttrACModTime
	}
	if len(a.Extended) > 0 {
		f |= AttrExtended
	}
	return f
}

func (e *frameWriter) writeAttrs(a Attributes) {
	e.writeUint32(a.flags())
	if a.HasSize {
		e.writeUint64(a.Size)
	}
	if a.HasUIDGID {
		e.writeUint32(a.UID)
		e.writeUint32(a.GID)
	}
	if a.HasPermissions {
		e.writeUint32(a.Permissions)
	}
	if a.HasACModTime {
		e.writeUint32(a.AccessTime)
		e.writeUint32(a.ModifyTime)
	}
	if len(a.Extended) > 0 {
		e.writeUint32(uint32(len(a.Extended)))
		for k, v := range a.Extended {
			e.writeString(k)
			e.writeString(v)
		}
	}
}

// readAttrs decodes an attribute record. The UIDGID and ACMODTIME flags
// are honored as paired units: if the flag is set both fields are read,
// otherwise neither (spec.md §4.1).
func (d *frameReader) readAttrs() (Attributes, error) {
	var a Attributes
	flags, err := d.readUint32()
	if err != nil {
		return a, err
	}
	if flags&AttrSize != 0 {
		a.HasSize = true
		if a.Size, err = d.readUint64(); err != nil {
			return a, err
		}
	}
	if flags&AttrUIDGID != 0 {
		a.HasUIDGID = true
		if a.UID, err = d.readUint32(); err != nil {
			return a, err
		}
		if a.GID, err = d.readUint32(); err != nil {
			return a, err
		}
	}
	if flags&AttrPermissions != 0 {
		a.HasPermissions = true
		if a.Permissions, err = d.readUint32(); err != nil {
			return a, err
		}
	}
	if flags&AttrACModTime != 0 {
		a.HasACModTime = true
		if a.AccessTime, err = d.readUint32(); err != nil {
			return a, err
		}
		if a.ModifyTime, err = d.readUint32(); err != nil {
			return a, err
		}
	}
	if flags&AttrExtended != 0 {
		count, err := d.readUint32()
		if err != nil {
			return a, err
		}
		a.Extended = make(map[string]string, count)
		for i := uint32(0); i < count; i++ {
			k, err := d.readString()
			if err != nil {
				return a, err
			}
			v, err := d.readString()
			if err != nil {
				return a, err
			}
			a.Extended[k] = v
		}
	}
	return a, nil
}

// Name is one entry of a NAME response (spec.md §3).
type Name struct {
	Name       string
	LongName   string
	Attributes Attributes
}

func (e *frameWriter) writeName(n Name) {
	e.writeString(n.Name)
	e.writeString(n.LongName)
	e.writeAttrs(n.Attributes)
}

func (d *frameReader) readName() (Name, error) {
	var n Name
	var err error
	if n.Name, err = d.readString(); err != nil {
		return n, err
	}
	if n.LongName, err = d.readString(); err != nil {
		return n, err
	}
	if n.Attributes, err = d.readAttrs(); err != nil {
		return n, err
	}
	return n, nil
}

// LongName renders the human-readable "ls -l"-style line for name,
// using attrs for the fields it has and "?" for anything it lacks
// (spec.md §6).
func LongName(name string, isDir bool, attrs Attributes) string {
	typeChar := byte('-')
	if isDir {
		typeChar = 'd'
	}

	perms := "?????????"
	if attrs.HasPermissions {
		perms = permString(attrs.Permissions)
	}

	nlinks := "?"
	owner := "?"
	group := "?"
	size := "?"
	if attrs.HasUIDGID {
		owner = fmt.Sprintf("%d", attrs.UID)
		group = fmt.Sprintf("%d", attrs.GID)
	}
	if attrs.HasSize {
		size = fmt.Sprintf("%d", attrs.Size)
	}

	mtime := "??? ?? ??:??"
	if attrs.HasACModTime {
		mtime = time.Unix(int64(attrs.ModifyTime), 0).UTC().Format("Jan _2 15:04")
	}

	return fmt.Sprintf("%c%s %3s %-8s %-8s %8s %s %s",
		typeChar, perms, nlinks, owner, group, size, mtime, name)
}

func permString(mode uint32) string {
	var sb strings.Builder
	triplets := []uint32{mode >> 6 & 0x7, mode >> 3 & 0x7, mode & 0x7}
	for _, t := range triplets {
		if t&0x4 != 0 {
			sb.WriteByte('r')
		} else {
			sb.WriteByte('-')
		}
		if t&0x2 != 0 {
			sb.WriteByte('w')
		} else {
			sb.WriteByte('-')
		}
		if t&0x1 != 0 {
			sb.WriteByte('x')
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}
