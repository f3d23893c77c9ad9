package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/realtime"
	"github.com/cppla/eduxp/utils"
)

// DiscussionController manages class discussion threads and replies.
// Every write publishes a change event for the class.
type DiscussionController struct {
	db     *gorm.DB
	pub    realtime.Publisher
	stream *realtime.Stream
}

// NewDiscussionController creates a new DiscussionController instance.
func NewDiscussionController(db *gorm.DB, pub realtime.Publisher, stream *realtime.Stream) *DiscussionController {
	return &DiscussionController{db: db, pub: pub, stream: stream}
}

// List returns a class's threads with authors and replies, newest first.
func (d *DiscussionController) List(ctx *gin.Context) {
	classID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var total int64
	if err := d.db.WithContext(ctx).Model(&models.Discussion{}).Where("class_id = ?", classID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to count discussions")
		return
	}
	var threads []models.Discussion
	err := d.db.WithContext(ctx).
		Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Replies.User").
		Where("class_id = ?", classID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&threads).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50081, "failed to list discussions")
		return
	}

	utils.Success(ctx, gin.H{
		"items": threads,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

type contentRequest struct {
	Content string `json:"content" binding:"required"`
}

func bindContent(ctx *gin.Context) (string, bool) {
	var req contentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return "", false
	}
	content := utils.Sanitize(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40081, "content cannot be empty")
		return "", false
	}
	return content, true
}

// Create opens a thread in a class.
func (d *DiscussionController) Create(ctx *gin.Context) {
	classID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	content, ok := bindContent(ctx)
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	var class models.Class
	if err := d.db.WithContext(ctx).Select("id").First(&class, classID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "class not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50082, "failed to load class")
		return
	}

	thread := models.Discussion{ClassID: classID, UserID: userID, Content: content}
	if err := d.db.WithContext(ctx).Create(&thread).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50083, "failed to create discussion")
		return
	}
	if err := d.db.WithContext(ctx).Preload("User").First(&thread, thread.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50084, "failed to load discussion")
		return
	}
	d.publish(ctx, realtime.TableDiscussions, realtime.OpInsert, classID, thread.ID)
	utils.Created(ctx, thread)
}

// Reply adds a reply to a thread.
func (d *DiscussionController) Reply(ctx *gin.Context) {
	threadID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	content, ok := bindContent(ctx)
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	thread, ok := d.loadThread(ctx, threadID)
	if !ok {
		return
	}

	reply := models.DiscussionReply{DiscussionID: thread.ID, UserID: userID, Content: content}
	if err := d.db.WithContext(ctx).Create(&reply).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50085, "failed to create reply")
		return
	}
	if err := d.db.WithContext(ctx).Preload("User").First(&reply, reply.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50086, "failed to load reply")
		return
	}
	d.publish(ctx, realtime.TableDiscussionReplies, realtime.OpInsert, thread.ClassID, reply.ID)
	utils.Created(ctx, reply)
}

// Update lets the author edit a thread.
func (d *DiscussionController) Update(ctx *gin.Context) {
	threadID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	content, ok := bindContent(ctx)
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	thread, ok := d.loadThread(ctx, threadID)
	if !ok {
		return
	}
	if thread.UserID != userID {
		utils.Error(ctx, http.StatusForbidden, 40380, "you can only edit your own discussion")
		return
	}
	if err := d.db.WithContext(ctx).Model(&thread).Update("content", content).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50087, "failed to update discussion")
		return
	}
	thread.Content = content
	d.publish(ctx, realtime.TableDiscussions, realtime.OpUpdate, thread.ClassID, thread.ID)
	utils.Success(ctx, thread)
}

// Delete removes a thread and its replies. Authors and staff may delete.
func (d *DiscussionController) Delete(ctx *gin.Context) {
	threadID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	thread, ok := d.loadThread(ctx, threadID)
	if !ok {
		return
	}
	if thread.UserID != userID && !isStaff(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40381, "you can only delete your own discussion")
		return
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("discussion_id = ?", thread.ID).Delete(&models.DiscussionReply{}).Error; err != nil {
			return err
		}
		return tx.Delete(&thread).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50088, "failed to delete discussion")
		return
	}
	d.publish(ctx, realtime.TableDiscussions, realtime.OpDelete, thread.ClassID, thread.ID)
	utils.SuccessMessage(ctx, "discussion deleted", gin.H{"id": thread.ID})
}

// DeleteReply removes a reply. Authors and staff may delete.
func (d *DiscussionController) DeleteReply(ctx *gin.Context) {
	replyID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	var reply models.DiscussionReply
	if err := d.db.WithContext(ctx).First(&reply, replyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40481, "reply not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50089, "failed to load reply")
		return
	}
	if reply.UserID != userID && !isStaff(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40382, "you can only delete your own reply")
		return
	}
	thread, ok := d.loadThread(ctx, reply.DiscussionID)
	if !ok {
		return
	}
	if err := d.db.WithContext(ctx).Delete(&reply).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50090, "failed to delete reply")
		return
	}
	d.publish(ctx, realtime.TableDiscussionReplies, realtime.OpDelete, thread.ClassID, reply.ID)
	utils.SuccessMessage(ctx, "reply deleted", gin.H{"id": reply.ID})
}

// Stream upgrades to a WebSocket carrying the class's change events.
func (d *DiscussionController) Stream(ctx *gin.Context) {
	classID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	if err := d.stream.Serve(ctx.Writer, ctx.Request, classID); err != nil {
		utils.Sugar.Debugw("websocket upgrade failed", "class_id", classID, "err", err)
	}
}

func (d *DiscussionController) loadThread(ctx *gin.Context, id uint) (models.Discussion, bool) {
	var thread models.Discussion
	if err := d.db.WithContext(ctx).First(&thread, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40480, "discussion not found")
			return thread, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50091, "failed to load discussion")
		return thread, false
	}
	return thread, true
}

func (d *DiscussionController) publish(ctx *gin.Context, table string, op realtime.Op, classID, recordID uint) {
	d.pub.Publish(ctx, realtime.Event{Table: table, Op: op, ClassID: classID, RecordID: recordID})
}
