package mocks

//go:generate mockery --name APIKeyStore --srcpkg github.com/pulseops-lab/pulseops/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name AggregateReader --srcpkg github.com/pulseops-lab/pulseops/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name Publisher --srcpkg github.com/pulseops-lab/pulseops/internal/bus --output ./bus --outpkg busmocks --with-expecter
