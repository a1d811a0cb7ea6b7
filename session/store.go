// Package session persists the ROBis credential obtained after web
// login: the auth token plus the serialized local-storage snapshot that
// gets replayed into the embedded browser view.
package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const (
	keyToken   = "robis-cookie"
	keyStorage = "robis-ls"
)

// ErrNoCredential indicates that no login has been stored yet.
var ErrNoCredential = errors.New("session: no stored credential")

// Credential is the persisted login state.
type Credential struct {
	Token   string
	Storage map[string]string
}

// Store keeps the credential in the plugin_kv collection. The value is
// read by several components but only replaced on explicit login, so no
// locking beyond the store's own save is needed.
type Store struct {
	app core.App
}

func NewStore(app core.App) *Store { return &Store{app: app} }

func (s *Store) kv(key string) (string, bool) {
	rec, err := s.app.FindFirstRecordByFilter("plugin_kv", "key = {:k}", dbx.Params{"k": key})
	if err != nil || rec == nil {
		return "", false
	}
	return rec.GetString("value"), true
}

func (s *Store) setKV(app core.App, key, value string) error {
	rec, _ := app.FindFirstRecordByFilter("plugin_kv", "key = {:k}", dbx.Params{"k": key})
	if rec == nil {
		col, err := app.FindCollectionByNameOrId("plugin_kv")
		if err != nil {
			return err
		}
		rec = core.NewRecord(col)
		rec.Set("key", key)
	}
	rec.Set("value", value)
	return app.Save(rec)
}

// Set replaces the stored credential atomically.
func (s *Store) Set(cred Credential) error {
	snapshot, err := json.Marshal(cred.Storage)
	if err != nil {
		return err
	}
	return s.app.RunInTransaction(func(tx core.App) error {
		if err := s.setKV(tx, keyToken, cred.Token); err != nil {
			return err
		}
		return s.setKV(tx, keyStorage, string(snapshot))
	})
}

// Get returns the stored credential or ErrNoCredential.
func (s *Store) Get() (Credential, error) {
	token, ok := s.kv(keyToken)
	if !ok || token == "" {
		return Credential{}, ErrNoCredential
	}
	cred := Credential{Token: token, Storage: map[string]string{}}
	if raw, ok := s.kv(keyStorage); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &cred.Storage); err != nil {
			return Credential{}, err
		}
	}
	return cred, nil
}

// Expired reports whether the stored token has run out; callers prompt
// for re-login. A missing credential counts as expired.
func (s *Store) Expired(now time.Time) bool {
	cred, err := s.Get()
	if err != nil {
		return true
	}
	return IsExpired(cred.Token, now)
}
