package detect

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/medix/medix-server/pkg/models"
)

// Classifier runs inference for one disease domain. Implementations must
// be safe for concurrent use; the registry shares them across requests.
type Classifier interface {
	Predict(input []float32) ([]float32, error)
	Labels() []string
}

// DomainSpec fixes the per-domain preprocessing and ranking parameters.
// Each classifier was trained on a specific input shape, so these values
// are constants, not configuration.
type DomainSpec struct {
	Domain      string
	Description string
	InputWidth  int
	InputHeight int
	// MultiLabel models emit independent per-label probabilities
	// (sigmoid); single-label models emit a softmax distribution.
	MultiLabel bool
	// Threshold is the inclusion cutoff for multi-label predictions.
	Threshold float64
	TopK      int
	Labels    []string
	// ModelFiles are tried in order; the first readable file wins.
	ModelFiles []string
}

var nailLabels = []string{
	"Acral Lentiginous Melanoma", "Healthy Nail", "Onychogryphosis",
	"blue finger", "clubbing", "pitting",
}

var skinLabels = []string{
	"Acne", "Eczema", "Melanoma", "Psoriasis", "Basal Cell Carcinoma",
	"Dermatitis", "Vitiligo", "Rosacea", "Hives", "Seborrheic Keratosis",
	"Warts", "Herpes", "Impetigo", "Cellulitis", "Ringworm", "Scabies",
	"Age Spots", "Moles", "Chickenpox", "Shingles", "Cold Sores", "Normal",
}

var oralLabels = []string{
	"Caries", "Calculus", "Gingivitis", "Tooth Discoloration", "Ulcers",
	"Hypodontia",
}

var eyeLabels = []string{
	"Cataract", "Conjunctivitis", "Eyelid", "Normal", "Uveitis",
}

var boneLabels = []string{"Not Fractured", "Fractured"}

var chestLabels14 = []string{
	"Atelectasis", "Cardiomegaly", "Effusion", "Infiltration", "Mass",
	"Nodule", "Pneumonia", "Pneumothorax", "Consolidation", "Edema",
	"Emphysema", "Fibrosis", "Pleural_Thickening", "Hernia",
}

var domainSpecs = []DomainSpec{
	{
		Domain:      "nail",
		Description: "Nail disease detection - Analyzes nail conditions including fungus, trauma, psoriasis (6 conditions)",
		InputWidth:  224, InputHeight: 224,
		TopK:       3,
		Labels:     nailLabels,
		ModelFiles: []string{"nail_disease_model.tflite", "nail_disease_classifier_best.tflite"},
	},
	{
		Domain:      "skin",
		Description: "Skin disease analysis - Detects various skin conditions (22 conditions)",
		InputWidth:  224, InputHeight: 224,
		TopK:       3,
		Labels:     skinLabels,
		ModelFiles: []string{"skin_disease_classifier.tflite", "skin_disease_model.tflite"},
	},
	{
		Domain:      "oral",
		Description: "Oral health assessment - Identifies dental and gum diseases (6 conditions)",
		InputWidth:  224, InputHeight: 224,
		TopK:       3,
		Labels:     oralLabels,
		ModelFiles: []string{"oral_disease_model.tflite", "oral_disease_model_final.tflite"},
	},
	{
		Domain:      "eye",
		Description: "Eye disease detection - Diagnoses eye conditions like cataract, conjunctivitis (5 conditions)",
		InputWidth:  224, InputHeight: 224,
		TopK:       3,
		Labels:     eyeLabels,
		ModelFiles: []string{"eye_disease_model.tflite", "eye_disease_efficientnet_b3.tflite"},
	},
	{
		Domain:      "bone",
		Description: "Bone fracture detection - Binary classification for X-ray fracture analysis",
		InputWidth:  224, InputHeight: 224,
		TopK:       3,
		Labels:     boneLabels,
		ModelFiles: []string{"bone_fracture_model.tflite", "best_bone_fracture_model.tflite"},
	},
	{
		Domain:      "chest",
		Description: "Chest X-ray analysis - Multi-label detection of chest conditions (14 conditions)",
		InputWidth:  224, InputHeight: 224,
		MultiLabel:  true,
		Threshold:   0.3,
		TopK:        3,
		Labels:      chestLabels14,
		ModelFiles:  []string{"chest_xray_model.tflite", "chest_xray_classifier.tflite"},
	},
}

// Registry maps a disease domain to its loaded classifier and spec. It is
// populated once at process start and read-only afterwards.
type Registry struct {
	specs       map[string]DomainSpec
	classifiers map[string]Classifier
}

// NewRegistry loads every domain classifier from modelsDir. Domains whose
// model file is missing or unreadable are skipped with a warning, matching
// a deployment that ships only a subset of the model artifacts.
func NewRegistry(modelsDir string) (*Registry, error) {
	r := &Registry{
		specs:       make(map[string]DomainSpec),
		classifiers: make(map[string]Classifier),
	}

	for _, spec := range domainSpecs {
		loaded := false
		for _, file := range spec.ModelFiles {
			path := filepath.Join(modelsDir, file)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			clf, err := NewTFLiteClassifier(path, spec.Labels)
			if err != nil {
				log.Printf("[WARN] Failed to load %s model from %s: %v", spec.Domain, file, err)
				continue
			}
			// Some chest checkpoints were trained without the Hernia
			// class; trust the model's output size over the default list.
			if spec.Domain == "chest" && clf.NumOutputs() == len(chestLabels14)-1 {
				spec.Labels = chestLabels14[:len(chestLabels14)-1]
				clf.SetLabels(spec.Labels)
				log.Printf("[DETECT] Detected chest model with %d classes", clf.NumOutputs())
			}
			r.specs[spec.Domain] = spec
			r.classifiers[spec.Domain] = clf
			log.Printf("[DETECT] Loaded %s model from %s", spec.Domain, file)
			loaded = true
			break
		}
		if !loaded {
			log.Printf("[WARN] Could not load %s model from any of %v, domain disabled", spec.Domain, spec.ModelFiles)
		}
	}

	if len(r.classifiers) == 0 {
		return nil, fmt.Errorf("no classifier models could be loaded from %s", modelsDir)
	}
	return r, nil
}

// NewRegistryWith builds a registry from explicit classifiers. Used by
// tests and by deployments that load models through other means.
func NewRegistryWith(classifiers map[string]Classifier) *Registry {
	r := &Registry{
		specs:       make(map[string]DomainSpec),
		classifiers: make(map[string]Classifier),
	}
	for _, spec := range domainSpecs {
		if clf, ok := classifiers[spec.Domain]; ok {
			spec.Labels = clf.Labels()
			r.specs[spec.Domain] = spec
			r.classifiers[spec.Domain] = clf
		}
	}
	return r
}

// Resolve returns the classifier and spec for a domain.
func (r *Registry) Resolve(domain string) (Classifier, DomainSpec, error) {
	clf, ok := r.classifiers[domain]
	if !ok {
		return nil, DomainSpec{}, fmt.Errorf("domain %q: %w", domain, models.ErrUnknownDomain)
	}
	return clf, r.specs[domain], nil
}

// Available lists the loaded domains in sorted order.
func (r *Registry) Available() []string {
	out := make([]string, 0, len(r.classifiers))
	for domain := range r.classifiers {
		out = append(out, domain)
	}
	sort.Strings(out)
	return out
}

// Descriptions maps each loaded domain to its human-readable description.
func (r *Registry) Descriptions() map[string]string {
	out := make(map[string]string, len(r.specs))
	for domain, spec := range r.specs {
		out[domain] = spec.Description
	}
	return out
}

// ModelInfo describes a loaded model for the models endpoint.
type ModelInfo struct {
	Loaded     bool     `json:"loaded"`
	NumClasses int      `json:"num_classes"`
	Classes    []string `json:"classes"`
	MultiLabel bool     `json:"multi_label"`
}

// Info returns per-domain model details.
func (r *Registry) Info() map[string]ModelInfo {
	out := make(map[string]ModelInfo, len(r.specs))
	for domain, spec := range r.specs {
		out[domain] = ModelInfo{
			Loaded:     true,
			NumClasses: len(spec.Labels),
			Classes:    spec.Labels,
			MultiLabel: spec.MultiLabel,
		}
	}
	return out
}
