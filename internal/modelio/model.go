package modelio

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"fcmsim/internal/fcm"
)

// DefaultDecay applies when a description gives neither decay nor lambda.
const DefaultDecay = 0.8

var (
	wmPattern = regexp.MustCompile(`^(\d+)_wm\.csv$`)

	modelValidate *validator.Validate
)

func init() {
	modelValidate = validator.New()
	_ = modelValidate.RegisterValidation("squash", func(fl validator.FieldLevel) bool {
		_, err := fcm.GetSquash(fl.Field().String())
		return err == nil
	})
}

// Description is the <i>_desc.yaml|json companion of a weight matrix.
// "main" and "lambda" are accepted as aliases of name and decay.
type Description struct {
	Name      string            `yaml:"name" json:"name" validate:"required"`
	Main      string            `yaml:"main" json:"main"`
	Decay     float64           `yaml:"decay" json:"decay" validate:"gt=0,lt=1"`
	Lambda    float64           `yaml:"lambda" json:"lambda"`
	Steepness float64           `yaml:"steepness" json:"steepness" validate:"gte=0"`
	Objective int               `yaml:"objective" json:"objective" validate:"gte=0"`
	Squash    string            `yaml:"squash" json:"squash" validate:"squash"`
	Nodes     map[string]string `yaml:"nodes" json:"nodes"`
}

func (d *Description) normalize() {
	if strings.TrimSpace(d.Name) == "" {
		d.Name = strings.TrimSpace(d.Main)
	}
	if d.Decay == 0 {
		d.Decay = d.Lambda
	}
	if d.Decay == 0 {
		d.Decay = DefaultDecay
	}
}

// NodeLabel returns the human label of a 0-based node; description node
// keys are 1-based.
func (d Description) NodeLabel(node int) string {
	if label, ok := d.Nodes[strconv.Itoa(node+1)]; ok && label != "" {
		return label
	}
	return fmt.Sprintf("node %d", node+1)
}

// Map is one numbered weight matrix with its description.
type Map struct {
	Index       int
	Description Description
	Graph       fcm.Graph
}

// Model is a loaded model directory: the sub-maps in index order and the
// optional aggregator map.
type Model struct {
	Dir        string
	SubMaps    []Map
	Aggregator *Map
}

// LoadModel reads every <i>_wm.csv in dir. aggregator names the aggregator
// map; empty selects the highest-numbered map, "none" disables it.
func LoadModel(dir, aggregator string) (*Model, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read model dir: %w", err)
	}
	var indices []int
	for _, entry := range entries {
		m := wmPattern.FindStringSubmatch(entry.Name())
		if m == nil || entry.IsDir() {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		indices = append(indices, idx)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: no *_wm.csv files in %s", fcm.ErrConfiguration, dir)
	}
	sort.Ints(indices)

	maps := make([]Map, 0, len(indices))
	for _, idx := range indices {
		m, err := loadMap(dir, idx)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}

	model := &Model{Dir: dir}
	aggIdx := -1
	switch strings.ToLower(strings.TrimSpace(aggregator)) {
	case "none":
	case "":
		if len(maps) > 1 {
			aggIdx = len(maps) - 1
		}
	default:
		for i, m := range maps {
			if m.Description.Name == aggregator {
				aggIdx = i
			}
		}
		if aggIdx < 0 {
			return nil, fmt.Errorf("%w: aggregator map %q not found", fcm.ErrConfiguration, aggregator)
		}
	}
	for i := range maps {
		if i == aggIdx {
			agg := maps[i]
			model.Aggregator = &agg
			continue
		}
		model.SubMaps = append(model.SubMaps, maps[i])
	}
	if len(model.SubMaps) == 0 {
		return nil, fmt.Errorf("%w: model has no sub-maps besides the aggregator", fcm.ErrConfiguration)
	}
	return model, nil
}

func loadMap(dir string, idx int) (Map, error) {
	desc, err := loadDescription(dir, idx)
	if err != nil {
		return Map{}, err
	}
	weights, err := readWeights(filepath.Join(dir, fmt.Sprintf("%d_wm.csv", idx)))
	if err != nil {
		return Map{}, err
	}
	g := fcm.Graph{
		Name:           desc.Name,
		Weights:        weights,
		Decay:          desc.Decay,
		Steepness:      desc.Steepness,
		ObjectiveIndex: desc.Objective,
		Squash:         desc.Squash,
	}
	if err := g.Validate(); err != nil {
		return Map{}, fmt.Errorf("map %d: %w", idx, err)
	}
	return Map{Index: idx, Description: desc, Graph: g}, nil
}

func loadDescription(dir string, idx int) (Description, error) {
	var (
		desc  Description
		found bool
	)
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(dir, fmt.Sprintf("%d_desc%s", idx, ext))
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Description{}, fmt.Errorf("read description: %w", err)
		}
		if ext == ".json" {
			err = json.Unmarshal(data, &desc)
		} else {
			err = yaml.Unmarshal(data, &desc)
		}
		if err != nil {
			return Description{}, fmt.Errorf("%w: decode %s: %v", fcm.ErrConfiguration, filepath.Base(path), err)
		}
		found = true
		break
	}
	if !found {
		desc.Name = fmt.Sprintf("map%d", idx)
	}
	desc.normalize()
	if err := modelValidate.Struct(desc); err != nil {
		return Description{}, fmt.Errorf("%w: map %d description: %v", fcm.ErrConfiguration, idx, err)
	}
	return desc, nil
}

// readWeights parses a square matrix. A first row that is non-numeric, or
// one row too many, is a header of node ids.
func readWeights(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]float64
	for line := 0; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", fcm.ErrConfiguration, filepath.Base(path), err)
		}
		row, err := parseRow(record)
		if err != nil {
			if line == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: %s line %d: %v", fcm.ErrConfiguration, filepath.Base(path), line+1, err)
		}
		rows = append(rows, row)
	}
	// numeric node-id header
	if len(rows) > 1 && len(rows) == len(rows[0])+1 {
		rows = rows[1:]
	}
	return rows, nil
}

func parseRow(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for i, cell := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// Names lists the sub-map names in gene-layout order.
func (m *Model) Names() []string {
	out := make([]string, len(m.SubMaps))
	for i, sm := range m.SubMaps {
		out[i] = sm.Description.Name
	}
	return out
}

// SubMap finds a sub-map by name.
func (m *Model) SubMap(name string) (Map, bool) {
	for _, sm := range m.SubMaps {
		if sm.Description.Name == name {
			return sm, true
		}
	}
	return Map{}, false
}

// GeneLabels names every gene of layout as "<sub-map>/<node label>".
func (m *Model) GeneLabels(layout []fcm.GeneRef) []string {
	out := make([]string, len(layout))
	for i, ref := range layout {
		label := fmt.Sprintf("node %d", ref.Node+1)
		if ref.SubMapIndex >= 0 && ref.SubMapIndex < len(m.SubMaps) {
			label = m.SubMaps[ref.SubMapIndex].Description.NodeLabel(ref.Node)
		}
		out[i] = ref.SubMap + "/" + label
	}
	return out
}
