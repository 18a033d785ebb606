package api

import (
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/engine"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

const defaultEventLimit = 100

type progressApi struct {
	eng Progression
}

func registerProgressAPI(g *echo.Group, eng Progression) {
	api := progressApi{eng: eng}

	cg := g.Group("/courses/:course")
	cg.GET("/progress", api.progress)
	cg.GET("/certificate", api.certificate)

	mg := cg.Group("/modules/:module")
	mg.POST("/access", api.access)
	mg.POST("/complete", api.complete)
	mg.POST("/quiz", api.startQuiz)
	mg.POST("/quiz/submit", api.submitQuiz)

	g.PUT("/quiz-sessions/:session/answers", api.saveAnswers)
	g.GET("/events", api.events)
}

// Requests & responses

type SaveAnswersRequest struct {
	Answers map[string]int `json:"answers" validate:"required,dive,keys,required,endkeys,min=0"`
}

type SubmitQuizRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=64"`
	// Without a session the attempt number makes resends idempotent.
	AttemptNumber int `json:"attempt_number" validate:"required_without=SessionID,min=0"`
	// Absent answers submit the session's saved draft.
	Answers map[string]int `json:"answers" validate:"omitempty,dive,keys,required,endkeys,min=0"`
}

type SubmitQuizResponse struct {
	*engine.SubmitResult
	CooldownRemainingSeconds int64 `json:"cooldown_remaining_seconds,omitempty"`
}

type EventsRequest struct {
	After  int64  `query:"after" validate:"min=0"`
	Type   string `query:"type"`
	Course string `query:"course"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
}

func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// Handlers

func (api *progressApi) progress(c echo.Context) error {
	p, err := api.eng.GetProgress(c.Request().Context(), learnerID(c), c.Param("course"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (api *progressApi) access(c echo.Context) error {
	st, err := api.eng.AccessModule(c.Request().Context(), learnerID(c), c.Param("course"), c.Param("module"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (api *progressApi) complete(c echo.Context) error {
	res, err := api.eng.CompleteModule(c.Request().Context(), learnerID(c), c.Param("course"), c.Param("module"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (api *progressApi) startQuiz(c echo.Context) error {
	view, err := api.eng.StartQuiz(c.Request().Context(), learnerID(c), c.Param("course"), c.Param("module"))
	if err != nil {
		return err
	}
	code := http.StatusCreated
	if view.Resumed {
		code = http.StatusOK
	}
	return c.JSON(code, view)
}

func (api *progressApi) saveAnswers(c echo.Context) error {
	var data SaveAnswersRequest
	if err := c.Bind(&data); err != nil {
		return err
	}
	if err := c.Validate(&data); err != nil {
		return err
	}
	if err := api.eng.SaveAnswers(c.Request().Context(), learnerID(c), c.Param("session"), data.Answers); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *progressApi) submitQuiz(c echo.Context) error {
	var data SubmitQuizRequest
	if err := c.Bind(&data); err != nil {
		return err
	}
	if err := c.Validate(&data); err != nil {
		return err
	}
	res, err := api.eng.SubmitQuiz(c.Request().Context(), engine.Submission{
		LearnerID:     learnerID(c),
		CourseID:      c.Param("course"),
		ModuleID:      c.Param("module"),
		SessionID:     data.SessionID,
		AttemptNumber: data.AttemptNumber,
		Answers:       data.Answers,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SubmitQuizResponse{
		SubmitResult:             res,
		CooldownRemainingSeconds: seconds(res.CooldownRemaining),
	})
}

func (api *progressApi) certificate(c echo.Context) error {
	cert, err := api.eng.Certificate(c.Request().Context(), learnerID(c), c.Param("course"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cert)
}

// events pages through the caller's own events.
func (api *progressApi) events(c echo.Context) error {
	var data EventsRequest
	if err := c.Bind(&data); err != nil {
		return err
	}
	if err := c.Validate(&data); err != nil {
		return err
	}
	if data.Limit == 0 {
		data.Limit = defaultEventLimit
	}
	evs, err := api.eng.Events(c.Request().Context(), store.EventQuery{
		AfterSequence: data.After,
		LearnerID:     learnerID(c),
		CourseID:      data.Course,
		Type:          data.Type,
		Limit:         data.Limit,
	})
	if err != nil {
		return err
	}
	next := data.After
	if len(evs) > 0 {
		next = evs[len(evs)-1].Sequence
	}
	return c.JSON(http.StatusOK, echo.Map{"events": evs, "next": next})
}
