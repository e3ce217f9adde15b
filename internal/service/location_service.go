package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/studiodl/archivio-api/internal/dto"
	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
)

const locationTreeCacheKey = "locations:tree"

type locationStore interface {
	GetByID(ctx context.Context, id string) (*models.Location, error)
	NextSequence(ctx context.Context, parentID *string, prefix string) (int, error)
	Insert(ctx context.Context, loc *models.Location) error
	Update(ctx context.Context, loc *models.Location) error
	UpdatePath(ctx context.Context, id, fullPath string) error
	ListAll(ctx context.Context) ([]models.Location, error)
	ListChildren(ctx context.Context, parentID string) ([]models.Location, error)
	ListSubtree(ctx context.Context, rootID string) ([]models.Location, error)
}

// LocationService maintains the physical storage tree: typed containment,
// derived codes and cascading path recomputation.
type LocationService struct {
	repo   locationStore
	cache  *CacheService
	logger *zap.Logger
}

// NewLocationService constructs the service.
func NewLocationService(repo locationStore, cache *CacheService, logger *zap.Logger) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationService{repo: repo, cache: cache, logger: logger}
}

// AllowedChildren returns the child types permitted under the given type.
func (s *LocationService) AllowedChildren(t models.LocationType) ([]models.LocationType, error) {
	if !models.IsValidLocationType(t) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown location type %q", t))
	}
	return models.AllowedChildren(t), nil
}

// Get returns a single location.
func (s *LocationService) Get(ctx context.Context, id string) (*models.Location, error) {
	loc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location")
	}
	if loc == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "location not found")
	}
	return loc, nil
}

// Create adds a storage unit under the given parent, allocating the next
// sibling sequence for its prefix and deriving code and full path.
func (s *LocationService) Create(ctx context.Context, req dto.CreateLocationRequest) (*models.Location, error) {
	prefix := strings.ToUpper(strings.TrimSpace(req.Prefix))
	if prefix == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy, "prefix is required")
	}
	if !models.IsValidLocationType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy, fmt.Sprintf("unknown location type %q", req.Type))
	}

	var parent *models.Location
	if req.ParentID == nil {
		if req.Type != models.LocationTypeOffice {
			return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy, "root locations must be offices")
		}
	} else {
		var err error
		parent, err = s.repo.GetByID(ctx, *req.ParentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent location")
		}
		if parent == nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy, "parent location not found")
		}
		if !models.CanContain(parent.Type, req.Type) {
			return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy,
				fmt.Sprintf("a %s cannot contain a %s", parent.Type, req.Type))
		}
	}

	sequence, err := s.repo.NextSequence(ctx, req.ParentID, prefix)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate location sequence")
	}

	loc := &models.Location{
		Type:     req.Type,
		ParentID: req.ParentID,
		Name:     strings.TrimSpace(req.Name),
		Prefix:   prefix,
		Sequence: sequence,
		Code:     prefix + strconv.Itoa(sequence),
		Active:   true,
	}
	loc.FullPath = joinPath(parent, loc.Code)

	if err := s.repo.Insert(ctx, loc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create location")
	}
	s.invalidateTree(ctx)
	return loc, nil
}

// Update renames or moves a storage unit, re-validating the containment
// rules and cascading the derived path to every descendant whose computed
// path changed.
func (s *LocationService) Update(ctx context.Context, id string, req dto.UpdateLocationRequest) (*models.Location, error) {
	loc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location")
	}
	if loc == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "location not found")
	}

	newParentID := loc.ParentID
	if req.MoveToRoot {
		newParentID = nil
	} else if req.ParentID != nil {
		newParentID = req.ParentID
	}
	newPrefix := loc.Prefix
	if req.Prefix != nil {
		newPrefix = strings.ToUpper(strings.TrimSpace(*req.Prefix))
		if newPrefix == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy, "prefix is required")
		}
	}
	if req.Name != nil {
		loc.Name = strings.TrimSpace(*req.Name)
	}
	if req.Active != nil {
		loc.Active = *req.Active
	}

	var parent *models.Location
	if newParentID == nil {
		if loc.Type != models.LocationTypeOffice {
			return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy, "root locations must be offices")
		}
	} else {
		if *newParentID == loc.ID {
			return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy, "location cannot contain itself")
		}
		parent, err = s.repo.GetByID(ctx, *newParentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent location")
		}
		if parent == nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy, "parent location not found")
		}
		if !models.CanContain(parent.Type, loc.Type) {
			return nil, appErrors.Clone(appErrors.ErrInvalidHierarchy,
				fmt.Sprintf("a %s cannot contain a %s", parent.Type, loc.Type))
		}
		if err := s.ensureNoCycle(ctx, loc.ID, parent); err != nil {
			return nil, err
		}
	}

	parentChanged := !equalParent(loc.ParentID, newParentID)
	prefixChanged := newPrefix != loc.Prefix
	if parentChanged || prefixChanged {
		sequence, err := s.repo.NextSequence(ctx, newParentID, newPrefix)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate location sequence")
		}
		loc.Sequence = sequence
	}
	loc.ParentID = newParentID
	loc.Prefix = newPrefix
	loc.Code = loc.Prefix + strconv.Itoa(loc.Sequence)
	loc.FullPath = joinPath(parent, loc.Code)

	if err := s.repo.Update(ctx, loc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update location")
	}
	if err := s.propagatePaths(ctx, loc); err != nil {
		return nil, err
	}
	s.invalidateTree(ctx)
	return loc, nil
}

// Tree returns the whole storage tree, roots first. Reads go through the
// cache when enabled.
func (s *LocationService) Tree(ctx context.Context) ([]*dto.LocationNode, error) {
	if s.cache.Enabled() {
		var cached []*dto.LocationNode
		if hit, _ := s.cache.Get(ctx, locationTreeCacheKey, &cached); hit {
			return cached, nil
		}
	}

	locations, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list locations")
	}
	tree := buildTree(locations)

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, locationTreeCacheKey, tree, 0)
	}
	return tree, nil
}

// Children returns the direct children of a node.
func (s *LocationService) Children(ctx context.Context, id string) ([]models.Location, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	children, err := s.repo.ListChildren(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	return children, nil
}

// ensureNoCycle walks the candidate parent's ancestor chain and fails when
// the node itself is encountered.
func (s *LocationService) ensureNoCycle(ctx context.Context, nodeID string, parent *models.Location) error {
	current := parent
	for current != nil {
		if current.ID == nodeID {
			return appErrors.Clone(appErrors.ErrInvalidHierarchy, "move would create a cycle")
		}
		if current.ParentID == nil {
			return nil
		}
		next, err := s.repo.GetByID(ctx, *current.ParentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to walk ancestors")
		}
		current = next
	}
	return nil
}

// propagatePaths recomputes full_path over the node's subtree and writes
// only the rows whose stored path differs. Rerunning it yields no writes.
func (s *LocationService) propagatePaths(ctx context.Context, root *models.Location) error {
	subtree, err := s.repo.ListSubtree(ctx, root.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subtree")
	}

	paths := map[string]string{root.ID: root.FullPath}
	for i := range subtree {
		node := &subtree[i]
		if node.ID == root.ID {
			continue
		}
		parentPath, ok := paths[derefOr(node.ParentID)]
		if !ok {
			// subtree rows come parents-first, so a missing parent path
			// means the row is outside the moved subtree
			continue
		}
		computed := parentPath + "/" + node.Code
		paths[node.ID] = computed
		if computed == node.FullPath {
			continue
		}
		if err := s.repo.UpdatePath(ctx, node.ID, computed); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to propagate path")
		}
	}
	return nil
}

func (s *LocationService) invalidateTree(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, locationTreeCacheKey); err != nil {
		s.logger.Warn("location tree cache invalidation failed", zap.Error(err))
	}
}

func joinPath(parent *models.Location, code string) string {
	if parent == nil {
		return code
	}
	return parent.FullPath + "/" + code
}

func buildTree(locations []models.Location) []*dto.LocationNode {
	nodes := make(map[string]*dto.LocationNode, len(locations))
	roots := make([]*dto.LocationNode, 0)
	for i := range locations {
		nodes[locations[i].ID] = &dto.LocationNode{Location: locations[i]}
	}
	for _, node := range nodes {
		if node.ParentID == nil {
			continue
		}
		if parent, ok := nodes[*node.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}
	for i := range locations {
		node := nodes[locations[i].ID]
		if locations[i].ParentID == nil {
			roots = append(roots, node)
		}
	}
	return roots
}

func equalParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
