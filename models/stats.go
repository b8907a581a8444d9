package models

import "time"

type ArticleStats struct {
	TotalArticles      int64 `json:"total_articles"`
	TotalEditorials    int64 `json:"total_editorials"`
	TotalPublished     int64 `json:"total_published"`
	TotalScheduled     int64 `json:"total_scheduled"`
	AskingApproval     int64 `json:"asking_approval"`
	TotalApproved      int64 `json:"total_approved"`
	TotalUnapproved    int64 `json:"total_unapproved"`
	TotalHidden        int64 `json:"total_hidden"`
	TodayPublished     int64 `json:"today_published"`
	ThisMonthPublished int64 `json:"this_month_published"`
	ThisYearPublished  int64 `json:"this_year_published"`
}

type UserStats struct {
	ActiveAuthors int64 `json:"active_authors"`
	ActiveReaders int64 `json:"active_readers"`
}

type Statistics struct {
	Article           ArticleStats `json:"article"`
	UserStats         UserStats    `json:"user_stats"`
	LatestPublishedOn *time.Time   `json:"latest_published_on"`
	GeneratedAt       time.Time    `json:"generated_at"`
}
