package repository

import "gorm.io/gorm"

// Repositories bundles every store the services need.
type Repositories struct {
	Tx           TransactionManager
	LoanRequests LoanRequestRepository
	Loans        LoanRepository
	Books        BookRepository
	Users        UserRepository
	Roles        RoleRepository
	Catalog      CatalogRepository
	Activities   ActivityLogRepository
	Dashboard    DashboardRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Tx:           NewTransactionManager(db),
		LoanRequests: NewLoanRequestRepository(db),
		Loans:        NewLoanRepository(db),
		Books:        NewBookRepository(db),
		Users:        NewUserRepository(db),
		Roles:        NewRoleRepository(db),
		Catalog:      NewCatalogRepository(db),
		Activities:   NewActivityLogRepository(db),
		Dashboard:    NewDashboardRepository(db),
	}
}
