package internal

import (
	"chat-relay/infrastructure/storage"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// maxInspectRows bounds a single inspector page.
const maxInspectRows = 500

var inspectTemplate = template.Must(template.New("inspect").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>badger {{.Prefix}}</title></head>
<body>
<form><input name="prefix" value="{{.Prefix}}"><button>scan</button></form>
<table border="1" cellpadding="4">
<tr><th>Key</th><th>Type</th><th>Time</th><th>Conversation</th><th>Entity</th><th>Detail</th></tr>
{{range .Items}}<tr><td>{{.Key}}</td><td>{{.Type}}</td><td>{{.Timestamp}}</td><td>{{.Namespace}}</td><td>{{.EntityID}}</td><td>{{.Detail}}</td></tr>
{{end}}</table>
</body></html>`))

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow

type PageData struct {
	Prefix string
	Items  []InspectRow
}

// NewDebugServer serves a read-only HTML view of badger rows under a prefix.
// It is only started at debug log level.
func NewDebugServer(db *badger.DB, addr, endpoint string, mapper RowMapper, log *slog.Logger) *http.Server {
	if mapper == nil {
		mapper = DefaultMapper
	}
	mux := http.NewServeMux()
	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}
		data := PageData{Prefix: prefix}
		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(data.Items) < maxInspectRows; it.Next() {
				item := it.Item()
				if err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Warn("Inspector scan failed", "prefix", prefix, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = inspectTemplate.Execute(w, data)
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 2 * time.Second}
}

// DefaultMapper splits "prefix:namespace:timestamp:id" keys.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "-",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	if len(parts) >= 4 {
		row.Type = strings.ToUpper(parts[0])
		row.Namespace = parts[1]
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format(time.TimeOnly)
		}
		row.EntityID = parts[3]
		if len(row.EntityID) > 8 {
			row.EntityID = row.EntityID[:8]
		}
	}
	return row
}

// MessageMapper decodes message rows so their text and flags are readable.
func MessageMapper(key string, val []byte) InspectRow {
	row := DefaultMapper(key, val)
	if !strings.HasPrefix(key, "msg:") {
		return row
	}
	message, err := storage.DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: decode failed"
		return row
	}
	row.Type = "TEXT"
	if message.System {
		row.Type = "SYSTEM"
	}
	if message.Media != nil {
		row.Type = strings.ToUpper(string(message.Media.Category))
	}
	row.Detail = fmt.Sprintf("%s: %s [pending=%t sent=%t received=%t]",
		message.SenderID, message.Text, message.Flags.Pending, message.Flags.Sent, message.Flags.Received)
	return row
}
