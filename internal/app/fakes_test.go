package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"ombudsman_deadline_notifier/internal/domain/casefile"
	"ombudsman_deadline_notifier/internal/domain/deadline"
	"ombudsman_deadline_notifier/internal/domain/directory"
	"ombudsman_deadline_notifier/internal/domain/notification"
	"ombudsman_deadline_notifier/internal/infra/delivery"
)

func nullLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

// memLedger enforces one sent record per key, like the partial unique index.
type memLedger struct {
	mu        sync.Mutex
	records   []*notification.Record
	lookupErr map[deadline.Bucket]error
	writeErr  error
}

func newMemLedger() *memLedger {
	return &memLedger{lookupErr: map[deadline.Bucket]error{}}
}

func (l *memLedger) hasSent(k notification.Key) bool {
	for _, r := range l.records {
		if r.Status == notification.StatusSent && r.Key() == k {
			return true
		}
	}
	return false
}

func (l *memLedger) AlreadyNotified(_ context.Context, protocol string, bucket deadline.Bucket) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasSent(notification.Key{Protocol: protocol, Bucket: bucket}), nil
}

func (l *memLedger) NotifiedAmong(_ context.Context, bucket deadline.Bucket, protocols []string) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.lookupErr[bucket]; err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, p := range protocols {
		if l.hasSent(notification.Key{Protocol: p, Bucket: bucket}) {
			out[p] = true
		}
	}
	return out, nil
}

func (l *memLedger) Record(_ context.Context, r *notification.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.Status == notification.StatusSent && l.hasSent(r.Key()) {
		return fmt.Errorf("%w: %s", notification.ErrAlreadyRecorded, r.Key())
	}
	l.records = append(l.records, r)
	return nil
}

func (l *memLedger) RecordBatch(_ context.Context, records []*notification.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	var dup []notification.Key
	for _, r := range records {
		if r.Status == notification.StatusSent && l.hasSent(r.Key()) {
			dup = append(dup, r.Key())
			continue
		}
		l.records = append(l.records, r)
	}
	if len(dup) > 0 {
		return &notification.DuplicateError{Keys: dup}
	}
	return nil
}

func (l *memLedger) count(protocol string, bucket deadline.Bucket, status notification.Status) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.Protocol == protocol && r.Bucket == bucket && r.Status == status {
			n++
		}
	}
	return n
}

func (l *memLedger) all() []*notification.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*notification.Record(nil), l.records...)
}

type staticCases struct {
	cases []*casefile.Case
	err   error
}

func (s staticCases) ListCandidates(context.Context) ([]*casefile.Case, error) {
	return s.cases, s.err
}

type memDirectory struct {
	entries []*directory.Entry
	err     error
}

func (d *memDirectory) FindByName(_ context.Context, name string) (*directory.Entry, error) {
	if d.err != nil {
		return nil, d.err
	}
	for _, e := range d.entries {
		if strings.EqualFold(strings.TrimSpace(e.Name), strings.TrimSpace(name)) && len(e.Addresses()) > 0 {
			return e, nil
		}
	}
	return nil, directory.ErrEntryNotFound
}

func (d *memDirectory) List(context.Context) ([]*directory.Entry, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.entries, nil
}

// recordingSender accepts everything except addresses listed in fail.
type recordingSender struct {
	mu   sync.Mutex
	sent []delivery.Message
	fail map[string]error
	// gate, when set, is called before every send.
	gate func()
	seq  int
}

func (s *recordingSender) Send(_ context.Context, msg delivery.Message) (string, error) {
	if s.gate != nil {
		s.gate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msg.To]; err != nil {
		return "", err
	}
	s.seq++
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("id-%d", s.seq), nil
}

func (s *recordingSender) to() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.To
	}
	return out
}

func openCase(protocol, typ, department, created string) *casefile.Case {
	c := &casefile.Case{Protocol: protocol, ManifestationType: typ, Department: department}
	if created != "" {
		t, err := time.Parse("2006-01-02", created)
		if err != nil {
			panic(err)
		}
		c.CreatedAt = sql.NullTime{Time: t, Valid: true}
	}
	return c
}

func item(protocol, department string, bucket deadline.Bucket, due string) Item {
	return Item{
		Protocol:   protocol,
		Department: department,
		Type:       "Reclamação",
		Bucket:     bucket,
		DueDate:    deadline.MustParseDate(due),
	}
}

var testDirectory = &memDirectory{entries: []*directory.Entry{
	{Name: "Secretaria Municipal de Saúde", Primary: "smsdc@x.gov; backup@x.gov"},
	{Name: "Secretaria de Obras", Primary: "obras@x.gov"},
	{Name: "Secretaria de Educação", Primary: "sem-endereco"},
}}
