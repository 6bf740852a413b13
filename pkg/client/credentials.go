package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Scope ámbito de persistencia de las credenciales.
type Scope string

const (
	// ScopePersistent sobrevive al reinicio ("recordarme").
	ScopePersistent Scope = "persistent"
	// ScopeEphemeral se pierde al terminar el proceso.
	ScopeEphemeral Scope = "ephemeral"
)

// ErrNoSession no hay credenciales en ningún ámbito.
var ErrNoSession = errors.New("client: sin sesión")

// Credentials par access + refresh; siempre viajan juntos.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Backend almacén clave/valor de un ámbito. Load devuelve (nil, nil) si está vacío.
type Backend interface {
	Load() (*Credentials, error)
	Save(Credentials) error
	Clear() error
}

// MemoryBackend ámbito efímero.
type MemoryBackend struct {
	mu    sync.Mutex
	creds *Credentials
}

// NewMemoryBackend backend en memoria.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Load() (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, nil
	}
	c := *m.creds
	return &c, nil
}

func (m *MemoryBackend) Save(c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &c
	return nil
}

func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}

// FileBackend ámbito persistente: un archivo JSON con permisos 0600.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend backend persistente en path.
func NewFileBackend(path string) *FileBackend { return &FileBackend{path: path} }

func (f *FileBackend) Load() (*Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leer credenciales: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decodificar credenciales: %w", err)
	}
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil, nil
	}
	return &c, nil
}

// Save escribe en un temporal y renombra: un lector nunca ve un par a medias.
func (f *FileBackend) Save(c Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("crear directorio de credenciales: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("guardar credenciales: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("guardar credenciales: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileBackend) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("borrar credenciales: %w", err)
	}
	return nil
}

// CredentialStore elige uno de dos ámbitos al hacer login y después lee y escribe siempre
// el ámbito activo. Los dos ámbitos son mutuamente excluyentes.
type CredentialStore struct {
	mu       sync.Mutex
	backends map[Scope]Backend
}

// NewCredentialStore construye el store sobre ambos backends.
func NewCredentialStore(persistent, ephemeral Backend) *CredentialStore {
	return &CredentialStore{backends: map[Scope]Backend{
		ScopePersistent: persistent,
		ScopeEphemeral:  ephemeral,
	}}
}

// Active credenciales vigentes y el ámbito que las guarda.
// El ámbito se deduce de quién tiene un token, no de una preferencia guardada.
func (s *CredentialStore) Active() (Credentials, Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active()
}

func (s *CredentialStore) active() (Credentials, Scope, error) {
	for _, scope := range []Scope{ScopeEphemeral, ScopePersistent} {
		c, err := s.backends[scope].Load()
		if err != nil {
			return Credentials{}, "", err
		}
		if c != nil {
			return *c, scope, nil
		}
	}
	return Credentials{}, "", ErrNoSession
}

// Put inicia sesión en scope y vacía el otro ámbito.
func (s *CredentialStore) Put(scope Scope, c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.backends[scope]
	if !ok {
		return fmt.Errorf("client: ámbito desconocido %q", scope)
	}
	for other, b := range s.backends {
		if other != scope {
			if err := b.Clear(); err != nil {
				return err
			}
		}
	}
	return target.Save(c)
}

// Replace reescribe ambos tokens en el mismo ámbito que ya estaba en uso.
func (s *CredentialStore) Replace(c Credentials) (Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, scope, err := s.active()
	if err != nil {
		return "", err
	}
	return scope, s.backends[scope].Save(c)
}

// Clear borra las credenciales de ambos ámbitos.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.backends[ScopePersistent].Clear(), s.backends[ScopeEphemeral].Clear())
}
