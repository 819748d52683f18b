package phase

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mintgate/internal/mint/models"
)

// scheduleDoc is the on-disk phase schedule. Times are unix seconds.
type scheduleDoc struct {
	Phases []phaseDoc `yaml:"mintPhases"`
}

type phaseDoc struct {
	Name                  string `yaml:"name"`
	StartTime             int64  `yaml:"startTime"`
	EndTime               int64  `yaml:"endTime"`
	StartTokenID          *int64 `yaml:"startTokenID"`
	EndTokenID            *int64 `yaml:"endTokenID"`
	MaxTokenSupply        *int64 `yaml:"maxTokenSupply"`
	EnableTokenIDRollOver bool   `yaml:"enableTokenIDRollOver"`
	EnableAllowList       bool   `yaml:"enableAllowList"`
	MaxTokensPerWallet    *int64 `yaml:"maxTokensPerWallet"`
}

// LoadFile reads and validates the YAML schedule at path.
func LoadFile(path string) ([]models.Phase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, configError(fmt.Sprintf("read phase schedule %s: %v", path, err))
	}
	return Parse(raw)
}

// Parse decodes a YAML schedule into phases and validates it.
//
//	mintPhases:
//	  - name: Presale
//	    startTime: 1629913600
//	    endTime: 1714570314
//	    startTokenID: 6015
//	    endTokenID: 6020
//	    enableAllowList: true
//	  - name: Public Sale
//	    startTime: 1714570315
//	    endTime: 1719292800
//	    enableTokenIDRollOver: true
//	    maxTokenSupply: 5
//	    maxTokensPerWallet: 25
func Parse(raw []byte) ([]models.Phase, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var doc scheduleDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, configError(fmt.Sprintf("decode phase schedule: %v", err))
	}

	phases := make([]models.Phase, 0, len(doc.Phases))
	for i, d := range doc.Phases {
		p, err := d.toPhase(i)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	if err := ValidateSchedule(phases); err != nil {
		return nil, err
	}
	return phases, nil
}

func (d phaseDoc) toPhase(index int) (models.Phase, error) {
	p := models.Phase{
		Name:             d.Name,
		Start:            time.Unix(d.StartTime, 0).UTC(),
		End:              time.Unix(d.EndTime, 0).UTC(),
		AllowListEnabled: d.EnableAllowList,
	}
	if d.MaxTokensPerWallet != nil {
		p.MaxTokensPerWallet = *d.MaxTokensPerWallet
	}

	label := d.Name
	if label == "" {
		label = fmt.Sprintf("#%d", index)
	}

	if d.EnableTokenIDRollOver {
		if d.StartTokenID != nil {
			return models.Phase{}, configError(fmt.Sprintf("phase %q: startTokenID cannot be set on a roll-over phase", label))
		}
		p.TokenIDs = models.Rollover{
			MaxTokenSupply: deref(d.MaxTokenSupply),
			EndTokenID:     deref(d.EndTokenID),
		}
		return p, nil
	}

	if d.MaxTokenSupply != nil {
		return models.Phase{}, configError(fmt.Sprintf("phase %q: maxTokenSupply only applies to roll-over phases", label))
	}
	if d.StartTokenID == nil || d.EndTokenID == nil {
		return models.Phase{}, configError(fmt.Sprintf("phase %q: startTokenID and endTokenID are required", label))
	}
	p.TokenIDs = models.FixedRange{Start: *d.StartTokenID, End: *d.EndTokenID}
	return p, nil
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
