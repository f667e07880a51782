package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splax/unhazzle/internal/domain"
	"github.com/splax/unhazzle/internal/repository"
	"github.com/splax/unhazzle/pkg/crypto"
)

// Codec converts state to and from the persisted JSON blob. With a seal key,
// masked variable values are stored AES-GCM encrypted.
type Codec struct {
	sealKey string
	suffix  string
	newID   func() string
	now     func() time.Time
}

// NewCodec returns a codec. An empty sealKey stores masked values as plain text.
func NewCodec(sealKey, domainSuffix string) Codec {
	if domainSuffix == "" {
		domainSuffix = DefaultDomainSuffix
	}
	return Codec{sealKey: sealKey, suffix: domainSuffix, newID: uuid.NewString, now: time.Now}
}

// Encode serializes st.
func (c Codec) Encode(st domain.State) ([]byte, error) {
	out := st.Clone()
	if c.sealKey != "" {
		err := eachEnvVar(&out, func(v *domain.EnvVar) error {
			if !v.Masked || v.Value == "" {
				return nil
			}
			sealed, err := crypto.SealString(c.sealKey, v.Value)
			if err != nil {
				return fmt.Errorf("seal %s: %w", v.Key, err)
			}
			v.Value = sealed
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	blob, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return blob, nil
}

// Decode parses a blob. Blobs written before projects existed, which carry
// deployed containers but no project, are upgraded as if MarkDeployed had run.
func (c Codec) Decode(blob []byte) (domain.State, error) {
	var st domain.State
	if err := json.Unmarshal(blob, &st); err != nil {
		return domain.State{}, fmt.Errorf("%w: decode state: %v", repository.ErrInvalidArgument, err)
	}
	err := eachEnvVar(&st, func(v *domain.EnvVar) error {
		if !crypto.IsSealed(v.Value) {
			return nil
		}
		if c.sealKey == "" {
			return fmt.Errorf("%w: %s is sealed and no seal key is configured", repository.ErrInvalidArgument, v.Key)
		}
		plain, err := crypto.OpenString(c.sealKey, v.Value)
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", repository.ErrInvalidArgument, v.Key, err)
		}
		v.Value = plain
		return nil
	})
	if err != nil {
		return domain.State{}, err
	}
	c.upgradeLegacy(&st)
	return st, nil
}

func (c Codec) upgradeLegacy(st *domain.State) {
	if st.Project != nil || !st.Deployed || len(st.Containers) == 0 {
		return
	}
	for i := range st.Containers {
		if st.Containers[i].ID == "" {
			st.Containers[i].ID = c.newID()
		}
	}
	at := c.now().UTC()
	if st.DeployedAt != nil {
		at = st.DeployedAt.UTC()
	}
	env := adoptDraft(st, "", c.newID, at, c.suffix)
	env.Deployed = true
	env.DeployedAt = &at
}

func eachEnvVar(st *domain.State, fn func(v *domain.EnvVar) error) error {
	visit := func(containers []domain.Container) error {
		for i := range containers {
			for j := range containers[i].EnvVars {
				if err := fn(&containers[i].EnvVars[j]); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := visit(st.Containers); err != nil {
		return err
	}
	if st.Project != nil {
		for i := range st.Project.Environments {
			if err := visit(st.Project.Environments[i].Containers); err != nil {
				return err
			}
		}
	}
	return nil
}
