package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/work"
)

type projectDoc struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	Name        string               `bson:"name"`
	Description string               `bson:"description,omitempty"`
	Status      string               `bson:"status"`
	Priority    string               `bson:"priority"`
	Owner       primitive.ObjectID   `bson:"owner"`
	Members     []primitive.ObjectID `bson:"members"`
	Teams       []primitive.ObjectID `bson:"teams"`
	Tags        []string             `bson:"tags,omitempty"`
	StartDate   *time.Time           `bson:"startDate,omitempty"`
	EndDate     *time.Time           `bson:"endDate,omitempty"`
	Archived    bool                 `bson:"isArchived"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func (d projectDoc) project() *work.Project {
	return &work.Project{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Status:      d.Status,
		Priority:    d.Priority,
		OwnerID:     refHex(d.Owner),
		MemberIDs:   hexIDs(d.Members),
		TeamIDs:     hexIDs(d.Teams),
		Tags:        d.Tags,
		StartDate:   utcPtr(d.StartDate),
		EndDate:     utcPtr(d.EndDate),
		Archived:    d.Archived,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type teamDoc struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	Name        string               `bson:"name"`
	Description string               `bson:"description,omitempty"`
	Leader      primitive.ObjectID   `bson:"leader,omitempty"`
	Members     []primitive.ObjectID `bson:"members"`
	Department  string               `bson:"department,omitempty"`
	CreatedBy   primitive.ObjectID   `bson:"createdBy,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func (d teamDoc) team() *work.Team {
	return &work.Team{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		LeaderID:    refHex(d.Leader),
		MemberIDs:   hexIDs(d.Members),
		Department:  d.Department,
		CreatedBy:   refHex(d.CreatedBy),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type taskDoc struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	Project     primitive.ObjectID   `bson:"project"`
	Title       string               `bson:"title"`
	Description string               `bson:"description,omitempty"`
	Status      string               `bson:"status"`
	Priority    string               `bson:"priority"`
	Reporter    primitive.ObjectID   `bson:"reporter,omitempty"`
	Assignees   []primitive.ObjectID `bson:"assignees"`
	Tags        []string             `bson:"tags,omitempty"`
	DueDate     *time.Time           `bson:"dueDate,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func (d taskDoc) task() *work.Task {
	return &work.Task{
		ID:          d.ID.Hex(),
		ProjectID:   refHex(d.Project),
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status,
		Priority:    d.Priority,
		ReporterID:  refHex(d.Reporter),
		AssigneeIDs: hexIDs(d.Assignees),
		Tags:        d.Tags,
		DueDate:     utcPtr(d.DueDate),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

func projectToDoc(p *work.Project) (projectDoc, error) {
	owner, err := optionalRef(p.OwnerID)
	if err != nil {
		return projectDoc{}, err
	}
	members, err := objectIDs(p.MemberIDs)
	if err != nil {
		return projectDoc{}, err
	}
	teams, err := objectIDs(p.TeamIDs)
	if err != nil {
		return projectDoc{}, err
	}
	return projectDoc{
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		Priority:    p.Priority,
		Owner:       owner,
		Members:     members,
		Teams:       teams,
		Tags:        p.Tags,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Archived:    p.Archived,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func teamToDoc(t *work.Team) (teamDoc, error) {
	leader, err := optionalRef(t.LeaderID)
	if err != nil {
		return teamDoc{}, err
	}
	createdBy, err := optionalRef(t.CreatedBy)
	if err != nil {
		return teamDoc{}, err
	}
	members, err := objectIDs(t.MemberIDs)
	if err != nil {
		return teamDoc{}, err
	}
	return teamDoc{
		Name:        t.Name,
		Description: t.Description,
		Leader:      leader,
		Members:     members,
		Department:  t.Department,
		CreatedBy:   createdBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}, nil
}

func taskToDoc(t *work.Task) (taskDoc, error) {
	project, err := objectID(t.ProjectID)
	if err != nil {
		return taskDoc{}, err
	}
	reporter, err := optionalRef(t.ReporterID)
	if err != nil {
		return taskDoc{}, err
	}
	assignees, err := objectIDs(t.AssigneeIDs)
	if err != nil {
		return taskDoc{}, err
	}
	return taskDoc{
		Project:     project,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Reporter:    reporter,
		Assignees:   assignees,
		Tags:        t.Tags,
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}, nil
}

// projectFilter builds the visibility query for a listing.
func projectFilter(f work.ProjectFilter) (bson.M, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.All {
		return filter, nil
	}
	uid, err := primitive.ObjectIDFromHex(f.UserID)
	if err != nil {
		return nil, auth.ErrNotFound
	}
	or := bson.A{bson.M{"owner": uid}, bson.M{"members": uid}}
	if len(f.TeamIDs) > 0 {
		teams, err := objectIDs(f.TeamIDs)
		if err != nil {
			return nil, err
		}
		or = append(or, bson.M{"teams": bson.M{"$in": teams}})
	}
	filter["$or"] = or
	return filter, nil
}

func (s *Store) CreateProject(ctx context.Context, p *work.Project) error {
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	doc, err := projectToDoc(p)
	if err != nil {
		return err
	}
	res, err := s.projects.InsertOne(ctx, doc)
	if err != nil {
		return mapErr(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = oid.Hex()
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*work.Project, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var d projectDoc
	if err := s.projects.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.project(), nil
}

func (s *Store) ListProjects(ctx context.Context, f work.ProjectFilter) ([]*work.Project, error) {
	filter, err := projectFilter(f)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return []*work.Project{}, nil
		}
		return nil, err
	}
	cur, err := s.projects.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []projectDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*work.Project, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.project())
	}
	return out, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, patch work.ProjectPatch) (*work.Project, error) {
	set := bson.M{"updatedAt": s.now().UTC()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Priority != nil {
		set["priority"] = *patch.Priority
	}
	if patch.TeamIDs != nil {
		teams, err := objectIDs(*patch.TeamIDs)
		if err != nil {
			return nil, err
		}
		set["teams"] = teams
	}
	if patch.Archived != nil {
		set["isArchived"] = *patch.Archived
	}
	return s.updateProject(ctx, id, bson.M{"$set": set})
}

func (s *Store) updateProject(ctx context.Context, id string, update bson.M) (*work.Project, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var d projectDoc
	if err := s.projects.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, afterUpdate()).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.project(), nil
}

// DeleteProject removes the project and its tasks.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.projects.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return auth.ErrNotFound
	}
	_, err = s.tasks.DeleteMany(ctx, bson.M{"project": oid})
	return err
}

func (s *Store) AddProjectMember(ctx context.Context, projectID, userID string) (*work.Project, error) {
	member, err := optionalRef(userID)
	if err != nil {
		return nil, err
	}
	return s.updateProject(ctx, projectID, bson.M{
		"$addToSet": bson.M{"members": member},
		"$set":      bson.M{"updatedAt": s.now().UTC()},
	})
}

func (s *Store) RemoveProjectMember(ctx context.Context, projectID, userID string) (*work.Project, error) {
	member, err := optionalRef(userID)
	if err != nil {
		return nil, err
	}
	return s.updateProject(ctx, projectID, bson.M{
		"$pull": bson.M{"members": member},
		"$set":  bson.M{"updatedAt": s.now().UTC()},
	})
}

func (s *Store) CreateTeam(ctx context.Context, t *work.Team) error {
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	doc, err := teamToDoc(t)
	if err != nil {
		return err
	}
	res, err := s.teams.InsertOne(ctx, doc)
	if err != nil {
		return mapErr(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		t.ID = oid.Hex()
	}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (*work.Team, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var d teamDoc
	if err := s.teams.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.team(), nil
}

func (s *Store) UpdateTeam(ctx context.Context, id string, patch work.TeamPatch) (*work.Team, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": s.now().UTC()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.LeaderID != nil {
		leader, err := optionalRef(*patch.LeaderID)
		if err != nil {
			return nil, err
		}
		set["leader"] = leader
	}
	if patch.MemberIDs != nil {
		members, err := objectIDs(*patch.MemberIDs)
		if err != nil {
			return nil, err
		}
		set["members"] = members
	}
	if patch.Department != nil {
		set["department"] = *patch.Department
	}
	var d teamDoc
	if err := s.teams.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, afterUpdate()).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.team(), nil
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.teams.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, t *work.Task) error {
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	doc, err := taskToDoc(t)
	if err != nil {
		return err
	}
	n, err := s.projects.CountDocuments(ctx, bson.M{"_id": doc.Project})
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	res, err := s.tasks.InsertOne(ctx, doc)
	if err != nil {
		return mapErr(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		t.ID = oid.Hex()
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*work.Task, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var d taskDoc
	if err := s.tasks.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.task(), nil
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]*work.Task, error) {
	oid, err := objectID(projectID)
	if err != nil {
		return []*work.Task{}, nil
	}
	cur, err := s.tasks.Find(ctx, bson.M{"project": oid}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*work.Task, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.task())
	}
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch work.TaskPatch) (*work.Task, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": s.now().UTC()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Priority != nil {
		set["priority"] = *patch.Priority
	}
	if patch.AssigneeIDs != nil {
		assignees, err := objectIDs(*patch.AssigneeIDs)
		if err != nil {
			return nil, err
		}
		set["assignees"] = assignees
	}
	var d taskDoc
	if err := s.tasks.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, afterUpdate()).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.task(), nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return auth.ErrNotFound
	}
	return nil
}
