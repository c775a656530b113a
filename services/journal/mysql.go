package journal

import (
	"context"
	"fmt"
	"time"

	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// JournalTrade is the journal_trades row
type JournalTrade struct {
	gorm.Model
	RunID     string    `gorm:"column:run_id;type:varchar(36);index;not null"`
	Asset     string    `gorm:"column:asset;type:varchar(20);index;not null"`
	TradeDate time.Time `gorm:"column:trade_date;not null"`
	Direction string    `gorm:"column:direction;type:varchar(5);not null"`
	Entry     string    `gorm:"column:entry;type:decimal(30,10);not null"`
	Exit      string    `gorm:"column:exit;type:decimal(30,10);not null"`
	PnL       string    `gorm:"column:pnl;type:decimal(30,10);not null"`
}

func (JournalTrade) TableName() string {
	return "journal_trades"
}

func toJournalTrades(rec Record) []JournalTrade {
	entries := rec.Entries()
	out := make([]JournalTrade, len(entries))
	for i, en := range entries {
		out[i] = JournalTrade{
			RunID:     en.RunID,
			Asset:     en.Asset,
			TradeDate: en.Date,
			Direction: en.Direction.String(),
			Entry:     en.Entry.String(),
			Exit:      en.Exit.String(),
			PnL:       en.PnL.String(),
		}
	}
	return out
}

// MySQLExporter stores journal rows through gorm
type MySQLExporter struct {
	db *gorm.DB
}

// OpenMySQL connects and migrates the journal table
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gorm_mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	if err := db.AutoMigrate(&JournalTrade{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal_trades: %w", err)
	}
	return db, nil
}

func NewMySQLExporter(db *gorm.DB) *MySQLExporter { return &MySQLExporter{db: db} }

func (e *MySQLExporter) Name() string { return "mysql" }

func (e *MySQLExporter) Export(ctx context.Context, rec Record) error {
	rows := toJournalTrades(rec)
	if len(rows) == 0 {
		return nil
	}
	if err := e.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("failed to insert journal rows: %w", err)
	}
	return nil
}

func (e *MySQLExporter) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
