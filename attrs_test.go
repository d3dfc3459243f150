package sftp

import (
	"bytes"
	"testing"
)

func TestAttributesRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		attrs Attributes
	}{
		{"empty", Attributes{}},
		{"size only", Attributes{HasSize: true, Size: 1 << 40}},
		{"uid gid", Attributes{HasUIDGID: true, UID: 1000, GID: 1000}},
		{"permissions", Attributes{HasPermissions: true, Permissions: 0o644}},
		{"times", Attributes{HasACModTime: true, AccessTime: 1000, ModifyTime: 2000}},
		{"extended", Attributes{Extended: map[string]string{"foo": "bar"}}},
		{"everything", Attributes{
			HasSize: true, Size: 42,
			HasUIDGID: true, UID: 1, GID: 2,
			HasPermissions: true, Permissions: 0o755,
			HasACModTime: true, AccessTime: 10, ModifyTime: 20,
			Extended: map[string]string{"k": "v"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ew := newFrameWriter(&buf, DefaultMaxFrameSize)
			ew.writeByte(0)
			ew.writeAttrs(tt.attrs)
			if err := ew.flush(); err != nil {
				t.Fatalf("flush: %v", err)
			}
			_, body, err := readFrame(&buf)
			if err != nil {
				t.Fatalf("readFrame: %v", err)
			}
			d := newFrameReader(bytes.NewReader(body))
			got, err := d.readAttrs()
			if err != nil {
				t.Fatalf("readAttrs: %v", err)
			}
			if got.HasSize != tt.attrs.HasSize || got.Size != tt.attrs.Size {
				t.Errorf("size: got %+v, want %+v", got, tt.attrs)
			}
			if got.HasUIDGID != tt.attrs.HasUIDGID || got.UID != tt.attrs.UID || got.GID != tt.attrs.GID {
				t.Errorf("uidgid: got %+v, want %+v", got, tt.attrs)
			}
			if got.HasPermissions != tt.attrs.HasPermissions || got.Permissions != tt.attrs.Permissions {
				t.Errorf("permissions: got %+v, want %+v", got, tt.attrs)
			}
			if got.HasACModTime != tt.attrs.HasACModTime || got.AccessTime != tt.attrs.AccessTime || got.ModifyTime != tt.attrs.ModifyTime {
				t.Errorf("actimes: got %+v, want %+v", got, tt.attrs)
			}
			for k, v := range tt.attrs.Extended {
				if got.Extended[k] != v {
					t.Errorf("extended[%q] = %q, want %q", k, got.Extended[k], v)
				}
			}
		})
	}
}

func TestLongNameUnknownFieldsRenderAsPlaceholders(t *testing.T) {
	got := LongName("file.txt", false, Attributes{})
	if !bytes.Contains([]byte(got), []byte("?????????")) {
		t.Errorf("LongName() = %q, want placeholder permission string", got)
	}
}

func TestLongNameDirectoryTypeChar(t *testing.T) {
	got := LongName("mydir", true, Attributes{HasPermissions: true, Permissions: 0o755})
	if got[0] != 'd' {
		t.Errorf("LongName() = %q, want leading 'd'", got)
	}
	if got[1:10] != "rwxr-xr-x" {
		t.Errorf("LongName() perms = %q, want rwxr-xr-x", got[1:10])
	}
}
