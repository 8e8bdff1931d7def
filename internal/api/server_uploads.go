package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/shotpost/internal/controller"
)

func registerUploadHandlers(api huma.API, svc Service) {
	type uploadInput struct {
		Body struct {
			Path string `json:"path" required:"true" doc:"Absolute or working-directory relative path of a .png, .jpg or .jpeg file"`
		}
	}
	type submissionOutput struct {
		Body controller.Submission
	}

	huma.Register(api, huma.Operation{OperationID: "submit-upload", Method: http.MethodPost, Path: "/api/v1/uploads", Summary: "Stage a screenshot on Facebook then Instagram", Tags: []string{"Uploads"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *uploadInput) (*submissionOutput, error) {
			sub, err := svc.SubmitUpload(ctx, input.Body.Path, false)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &submissionOutput{}
			out.Body = sub
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "submit-instagram-upload", Method: http.MethodPost, Path: "/api/v1/uploads/instagram", Summary: "Stage a screenshot on Instagram only", Tags: []string{"Uploads"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *uploadInput) (*submissionOutput, error) {
			sub, err := svc.SubmitUpload(ctx, input.Body.Path, true)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &submissionOutput{}
			out.Body = sub
			return out, nil
		})

	type taskListOutput struct {
		Body controller.TaskList
	}
	huma.Register(api, huma.Operation{OperationID: "list-tasks", Method: http.MethodGet, Path: "/api/v1/tasks", Summary: "Running and recently finished upload tasks", Tags: []string{"Tasks"}},
		func(ctx context.Context, input *struct{}) (*taskListOutput, error) {
			list, err := svc.ListTasks(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &taskListOutput{}
			out.Body = list
			return out, nil
		})

	type taskOutput struct {
		Body controller.TaskDetail
	}
	huma.Register(api, huma.Operation{OperationID: "get-task", Method: http.MethodGet, Path: "/api/v1/tasks/{task_id}", Summary: "One upload task", Tags: []string{"Tasks"}},
		func(ctx context.Context, input *struct {
			TaskID string `path:"task_id"`
		}) (*taskOutput, error) {
			d, err := svc.GetTask(ctx, input.TaskID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &taskOutput{}
			out.Body = d
			return out, nil
		})
}
