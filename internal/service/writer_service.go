package service

import (
	"context"

	"zola/internal/models"
	"zola/internal/repository"
	"zola/internal/validation"
)

type WriterService struct {
	writers repository.WriterRepository
}

// SaveWriterInput creates a writer, or updates WriterID's non-empty fields when set.
type SaveWriterInput struct {
	Name     *string `json:"name" validate:"omitempty,max=150"`
	Link     *string `json:"link" validate:"omitempty,url"`
	WriterID *uint   `json:"writerId"`
}

func NewWriterService(writers repository.WriterRepository) *WriterService {
	return &WriterService{writers: writers}
}

func (s *WriterService) GetByID(ctx context.Context, id uint) (*models.Writer, error) {
	return s.writers.GetByID(ctx, id)
}

func (s *WriterService) List(ctx context.Context, filter repository.WriterFilter, page repository.Page) ([]models.Writer, int64, error) {
	return s.writers.List(ctx, filter, page)
}

func writerNameTaken(err error) error {
	if col, dup := repository.DuplicateColumn(err); dup && col == "name" {
		return models.NewFieldError("name", "Writer with this Name already exists.")
	}
	return err
}

func (s *WriterService) Save(ctx context.Context, in SaveWriterInput) (*models.Writer, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	name, hasName := nonEmpty(in.Name)
	link, hasLink := nonEmpty(in.Link)

	if in.WriterID != nil {
		writer, err := s.writers.GetByID(ctx, *in.WriterID)
		if err != nil {
			return nil, err
		}
		fields := map[string]interface{}{}
		if hasName {
			fields["name"] = name
		}
		if hasLink {
			fields["link"] = link
		}
		if err := s.writers.Update(ctx, writer.ID, fields); err != nil {
			return nil, writerNameTaken(err)
		}
		return s.writers.GetByID(ctx, writer.ID)
	}

	if !hasName {
		return nil, models.NewFieldError("name", "This field is required.")
	}
	writer := &models.Writer{Name: name}
	if hasLink {
		writer.Link = &link
	}
	if err := s.writers.Create(ctx, writer); err != nil {
		return nil, writerNameTaken(err)
	}
	return writer, nil
}
