package common

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	idNode     *snowflake.Node
	idNodeOnce sync.Once
)

// SetIDNode selects the snowflake node; call before the first UUIDint64 when
// several instances share one database.
func SetIDNode(n int64) {
	node, err := snowflake.NewNode(n)
	if err != nil {
		zap.L().Error("invalid snowflake node", zap.Int64("node", n), zap.Error(err))
		return
	}
	idNodeOnce.Do(func() {})
	idNode = node
}

// UUIDint64 returns a time ordered unique id.
func UUIDint64() int64 {
	idNodeOnce.Do(func() {
		if idNode != nil {
			return
		}
		node, err := snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
		idNode = node
	})
	return idNode.Generate().Int64()
}

func Sha256HashWithSalt(src, salt string) string {
	h := sha256.New()
	h.Write([]byte(src))
	h.Write([]byte(salt))
	return hex.EncodeToString(h.Sum(nil))
}

func GetSecretSalt() string {
	if v := os.Getenv("ISPCARE_SECRET_SALT"); v != "" {
		return v
	}
	return "ispcare"
}

// NormalizePhone converts local Indonesian numbers (08xx) and WhatsApp JIDs
// to the bare international form (628xx).
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	switch {
	case strings.HasPrefix(out, "0"):
		out = "62" + out[1:]
	case strings.HasPrefix(out, "8"):
		out = "62" + out
	}
	return out
}

// ToJID returns the WhatsApp user JID for a phone number.
func ToJID(phone string) string {
	p := NormalizePhone(phone)
	if p == "" {
		return ""
	}
	return p + "@s.whatsapp.net"
}

func IsEmptyOrNA(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "N/A")
}
